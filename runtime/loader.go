package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mitchellh/mapstructure"
	goyaml "gopkg.in/yaml.v3"
)

// flowFile is the on-disk shape of a flow document.
type flowFile struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Trigger   TriggerBinding `yaml:"trigger"`
	StartPage string         `yaml:"startPage"`
	Pages     []pageFile     `yaml:"pages"`
}

type pageFile struct {
	ID    string           `yaml:"id"`
	Name  string           `yaml:"name,omitempty"`
	Nodes []map[string]any `yaml:"nodes"`
}

// FlowLoader loads flow definitions from YAML files.
type FlowLoader struct{}

func NewFlowLoader() *FlowLoader {
	return &FlowLoader{}
}

func (l *FlowLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml"}
}

func (l *FlowLoader) Load(filePath string) (*FlowGraph, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading flow file: %w", err)
	}
	return l.Parse(data)
}

func (l *FlowLoader) Parse(data []byte) (*FlowGraph, error) {
	var file flowFile
	if err := goyaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error unmarshalling flow: %w", err)
	}
	if err := file.Trigger.validate(); err != nil {
		return nil, fmt.Errorf("flow %s: %w", file.ID, err)
	}

	graph := &FlowGraph{
		ID:          file.ID,
		Name:        file.Name,
		StartPageID: file.StartPage,
		Pages:       make(map[string]*Page, len(file.Pages)),
		Trigger:     file.Trigger,
	}
	if graph.StartPageID == "" && len(file.Pages) > 0 {
		graph.StartPageID = file.Pages[0].ID
	}

	for _, pf := range file.Pages {
		if pf.ID == "" {
			return nil, fmt.Errorf("flow %s: page without id", file.ID)
		}
		if _, dup := graph.Pages[pf.ID]; dup {
			return nil, fmt.Errorf("flow %s: duplicate page id %q", file.ID, pf.ID)
		}
		page := &Page{ID: pf.ID, Name: pf.Name}
		for i, raw := range pf.Nodes {
			node, err := decodeNode(raw, fmt.Sprintf("%s#%d", pf.ID, i))
			if err != nil {
				return nil, fmt.Errorf("flow %s: page %s node %d: %w", file.ID, pf.ID, i, err)
			}
			page.Nodes = append(page.Nodes, node)
		}
		graph.Pages[pf.ID] = page
		graph.PageOrder = append(graph.PageOrder, pf.ID)
	}

	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

// LoadDir loads every flow file under dir, sorted by name so registration
// order is stable across restarts.
func (l *FlowLoader) LoadDir(dir string) ([]*FlowGraph, error) {
	var paths []string
	for _, pattern := range l.Extensions() {
		matched, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matched...)
	}
	sort.Strings(paths)

	var graphs []*FlowGraph
	for _, path := range paths {
		g, err := l.Load(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// decodeNode turns one authored node map into a typed Node. The kind selects
// the payload struct; the remaining keys are decoded into it weakly typed, so
// authors can write `duration: 5` where the field is a float. The raw map is
// kept so a graph serializes back out exactly as authored.
func decodeNode(raw map[string]any, fallbackID string) (*Node, error) {
	kindVal, ok := raw["kind"].(string)
	if !ok || kindVal == "" {
		return nil, fmt.Errorf("node has no kind")
	}
	kind := NodeKind(kindVal)

	node := &Node{
		ID:   fallbackID,
		Kind: kind,
		raw:  raw,
	}
	if id, ok := raw["id"].(string); ok && id != "" {
		node.ID = id
	}
	if label, ok := raw["label"].(string); ok {
		node.Label = label
	}

	payload, err := payloadFor(kind)
	if err != nil {
		return nil, err
	}

	if _, isParallel := payload.(*ParallelPayload); isParallel {
		children, err := decodeChildren(raw, node.ID)
		if err != nil {
			return nil, err
		}
		node.Payload = &ParallelPayload{Children: children}
		return node, nil
	}

	if err := decodePayload(raw, payload); err != nil {
		return nil, fmt.Errorf("node kind %q: %w", kind, err)
	}
	node.Payload = payload
	return node, nil
}

func decodeChildren(raw map[string]any, parentID string) ([]*Node, error) {
	rawChildren, _ := raw["children"].([]any)
	if len(rawChildren) == 0 {
		return nil, fmt.Errorf("parallel container has no children")
	}
	children := make([]*Node, 0, len(rawChildren))
	for i, rc := range rawChildren {
		childMap, err := toStringMap(rc)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		child, err := decodeNode(childMap, fmt.Sprintf("%s.%d", parentID, i))
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		children = append(children, child)
	}
	return children, nil
}

// toStringMap normalizes YAML's map[string]any / map[any]any variants.
func toStringMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			out[ks] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
}

func decodePayload(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func payloadFor(kind NodeKind) (any, error) {
	switch kind {
	case KindNarration, KindDialogue, KindPlayerDialogue:
		return &TextPayload{}, nil
	case KindChoice:
		return &ChoicePayload{}, nil
	case KindInlineChoice:
		return &InlineChoicePayload{}, nil
	case KindGotoPage:
		return &GotoPayload{}, nil
	case KindCondition:
		return &ConditionPayload{}, nil
	case KindSetVariable:
		return &SetVariablePayload{}, nil
	case KindDeclareVariable:
		return &DeclareVariablePayload{}, nil
	case KindSetAvatar:
		return &AvatarPayload{}, nil
	case KindDelay:
		return &DelayPayload{}, nil
	case KindPump, KindMockPump:
		return &PumpPayload{}, nil
	case KindParallel:
		return &ParallelPayload{}, nil
	case KindPopup:
		return &PopupPayload{}, nil
	case KindToast:
		return &ToastPayload{}, nil
	case KindChallengeCoin:
		return &CoinPayload{}, nil
	case KindChallengeDice:
		return &DicePayload{}, nil
	case KindChallengeWheel:
		return &WheelPayload{}, nil
	case KindChallengeRPS:
		return &RPSPayload{}, nil
	case KindChallengeGuess:
		return &GuessPayload{}, nil
	case KindChallengeSlots:
		return &SlotsPayload{}, nil
	case KindEnd:
		return &EndPayload{}, nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
}

// Marshal serializes a graph back to YAML from the retained raw node maps,
// so a loaded file round-trips without drift.
func (l *FlowLoader) Marshal(g *FlowGraph) ([]byte, error) {
	file := flowFile{
		ID:        g.ID,
		Name:      g.Name,
		Trigger:   g.Trigger,
		StartPage: g.StartPageID,
	}
	for _, pageID := range g.PageOrder {
		page := g.Pages[pageID]
		pf := pageFile{ID: page.ID, Name: page.Name}
		for _, node := range page.Nodes {
			pf.Nodes = append(pf.Nodes, node.raw)
		}
		file.Pages = append(file.Pages, pf)
	}
	return goyaml.Marshal(file)
}
