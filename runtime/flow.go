package runtime

import (
	"fmt"

	"screenloom/session"
)

// NodeKind tags the closed set of node variants a page can hold.
type NodeKind string

const (
	KindNarration       NodeKind = "narration"
	KindDialogue        NodeKind = "dialogue"
	KindPlayerDialogue  NodeKind = "player_dialogue"
	KindChoice          NodeKind = "choice"
	KindInlineChoice    NodeKind = "inline_choice"
	KindGotoPage        NodeKind = "goto_page"
	KindCondition       NodeKind = "condition"
	KindSetVariable     NodeKind = "set_variable"
	KindDeclareVariable NodeKind = "declare_variable"
	KindSetAvatar       NodeKind = "set_npc_actor_avatar"
	KindDelay           NodeKind = "delay"
	KindPump            NodeKind = "pump"
	KindMockPump        NodeKind = "mock_pump"
	KindParallel        NodeKind = "parallel_container"
	KindPopup           NodeKind = "popup"
	KindToast           NodeKind = "toast"
	KindChallengeCoin   NodeKind = "challenge_coin"
	KindChallengeDice   NodeKind = "challenge_dice"
	KindChallengeWheel  NodeKind = "challenge_wheel"
	KindChallengeRPS    NodeKind = "challenge_rps"
	KindChallengeGuess  NodeKind = "challenge_number_guess"
	KindChallengeSlots  NodeKind = "challenge_slots"
	KindEnd             NodeKind = "end"
)

// FlowGraph is the immutable-per-execution flow definition: pages keyed by
// id plus the designated start page. A running execution holds a read-only
// snapshot; authors save a new graph, never mutate a referenced one.
type FlowGraph struct {
	ID          string
	Name        string
	StartPageID string
	Pages       map[string]*Page
	PageOrder   []string
	Trigger     TriggerBinding
}

// Page is an ordered, non-empty container of nodes. Document order is
// execution order unless a node redirects.
type Page struct {
	ID    string
	Name  string
	Nodes []*Node
}

// Node is one typed step. Payload holds the per-kind struct decoded and
// validated at load time; raw keeps the authored map so a graph can be
// serialized back out unchanged.
type Node struct {
	ID      string
	Kind    NodeKind
	Label   string
	Payload any
	raw     map[string]any
}

// DisplayLabel is the node label shown on the status feed.
func (n *Node) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return string(n.Kind)
}

// TextPayload backs narration, dialogue and player_dialogue nodes.
type TextPayload struct {
	Text       string `mapstructure:"text"`
	Actor      string `mapstructure:"actor"`
	LLMEnhance bool   `mapstructure:"llmEnhance"`
	MaxTokens  int    `mapstructure:"maxTokens"`
}

// ChoiceOption is one selectable option. The visibility predicate
// (condVar/condOp/condVal) is evaluated before presentation; the assignment
// (setVar/setVal) is applied on selection.
type ChoiceOption struct {
	Text         string   `mapstructure:"text"`
	TargetPageID string   `mapstructure:"targetPageId"`
	SetVar       string   `mapstructure:"setVar"`
	SetVal       string   `mapstructure:"setVal"`
	CondVar      string   `mapstructure:"condVar"`
	CondOp       Operator `mapstructure:"condOp"`
	CondVal      string   `mapstructure:"condVal"`
}

type ChoicePayload struct {
	Prompt  string         `mapstructure:"prompt"`
	Options []ChoiceOption `mapstructure:"options"`
}

// InlineChoicePayload consumes options as they are picked. The continue edge
// unlocks immediately, or only after every option is consumed when
// requireAllOptions is set.
type InlineChoicePayload struct {
	Prompt               string         `mapstructure:"prompt"`
	Options              []ChoiceOption `mapstructure:"options"`
	RequireAllOptions    bool           `mapstructure:"requireAllOptions"`
	ContinueTargetPageID string         `mapstructure:"continueTargetPageId"`
}

type GotoPayload struct {
	TargetPageID string `mapstructure:"targetPageId"`
}

type ConditionPayload struct {
	Variable    string   `mapstructure:"variable"`
	Operator    Operator `mapstructure:"operator"`
	Value       string   `mapstructure:"value"`
	TruePageID  string   `mapstructure:"truePageId"`
	FalsePageID string   `mapstructure:"falsePageId"`
}

type SetVariablePayload struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

type DeclareVariablePayload struct {
	Name    string `mapstructure:"name"`
	Default string `mapstructure:"default"`
}

type AvatarPayload struct {
	Actor  string `mapstructure:"actor"`
	Avatar string `mapstructure:"avatar"`
}

type DelayPayload struct {
	Seconds float64 `mapstructure:"seconds"`
}

// PumpPayload backs pump (real device) and mock_pump (simulated target).
type PumpPayload struct {
	Device        string  `mapstructure:"device"`
	Action        string  `mapstructure:"action"`
	Duration      float64 `mapstructure:"duration"`
	Interval      float64 `mapstructure:"interval"`
	Cycles        int     `mapstructure:"cycles"`
	Pulses        int     `mapstructure:"pulses"`
	UntilEnabled  bool    `mapstructure:"untilEnabled"`
	UntilType     string  `mapstructure:"untilType"`
	UntilValue    float64 `mapstructure:"untilValue"`
	BlockContinue bool    `mapstructure:"blockContinue"`
}

// ParallelPayload holds child nodes whose side effects run concurrently.
// Only side-effect kinds are allowed in here; the container completes once
// every child with a natural completion has finished.
type ParallelPayload struct {
	Children []*Node
}

type PopupPayload struct {
	Text string `mapstructure:"text"`
}

type ToastPayload struct {
	Text string `mapstructure:"text"`
}

// Ending classifications for end nodes.
const (
	EndingNormal = "normal"
	EndingGood   = "good"
	EndingBad    = "bad"
	EndingSecret = "secret"
)

type EndPayload struct {
	Ending string `mapstructure:"ending"`
}

var parallelChildKinds = map[NodeKind]bool{
	KindPump:        true,
	KindMockPump:    true,
	KindSetVariable: true,
	KindDelay:       true,
	KindSetAvatar:   true,
}

// Valid pump actions at the graph level; they map one-to-one onto the device
// gateway's verbs.
var pumpActions = map[string]bool{
	"on":    true,
	"off":   true,
	"cycle": true,
	"pulse": true,
	"timed": true,
}

// Validate checks the whole graph so author-data errors surface as load-time
// diagnostics instead of traversal-time aborts.
func (g *FlowGraph) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("flow has no id")
	}
	if len(g.Pages) == 0 {
		return fmt.Errorf("flow %s has no pages", g.ID)
	}
	if _, ok := g.Pages[g.StartPageID]; !ok {
		return fmt.Errorf("flow %s: start page %q does not exist", g.ID, g.StartPageID)
	}
	for _, pageID := range g.PageOrder {
		page := g.Pages[pageID]
		if len(page.Nodes) == 0 {
			return fmt.Errorf("flow %s: page %s is empty", g.ID, pageID)
		}
		for i, node := range page.Nodes {
			if err := g.validateNode(node, false); err != nil {
				return fmt.Errorf("flow %s: page %s node %d: %w", g.ID, pageID, i, err)
			}
		}
	}
	return nil
}

func (g *FlowGraph) validateNode(n *Node, inParallel bool) error {
	if inParallel && !parallelChildKinds[n.Kind] {
		return fmt.Errorf("node kind %q is not allowed inside a parallel container", n.Kind)
	}
	for _, target := range nodeTargets(n) {
		if target == "" {
			continue
		}
		if _, ok := g.Pages[target]; !ok {
			return fmt.Errorf("target page %q does not exist", target)
		}
	}

	switch p := n.Payload.(type) {
	case *ConditionPayload:
		if !ValidOperator(p.Operator) {
			return fmt.Errorf("unknown condition operator %q", p.Operator)
		}
	case *ChoicePayload:
		return validateOptions(p.Options)
	case *InlineChoicePayload:
		return validateOptions(p.Options)
	case *PumpPayload:
		if !pumpActions[p.Action] {
			return fmt.Errorf("unknown pump action %q", p.Action)
		}
		if p.UntilEnabled {
			if p.Action != "on" {
				return fmt.Errorf("until-threshold requires action \"on\"")
			}
			if !p.BlockContinue {
				return fmt.Errorf("until-threshold requires blockContinue")
			}
			switch p.UntilType {
			case session.LevelCapacity, session.LevelFeeling:
			default:
				return fmt.Errorf("unknown until type %q", p.UntilType)
			}
		}
	case *ParallelPayload:
		for i, child := range p.Children {
			if err := g.validateNode(child, true); err != nil {
				return fmt.Errorf("child %d: %w", i, err)
			}
		}
	case *EndPayload:
		switch p.Ending {
		case "", EndingNormal, EndingGood, EndingBad, EndingSecret:
		default:
			return fmt.Errorf("unknown ending %q", p.Ending)
		}
	case *DicePayload:
		return p.validate()
	case *WheelPayload:
		return p.validate()
	case *GuessPayload:
		return p.validate()
	case *SlotsPayload:
		return p.validate()
	case *RPSPayload:
		return p.validate()
	}
	return nil
}

func validateOptions(opts []ChoiceOption) error {
	if len(opts) == 0 {
		return fmt.Errorf("choice has no options")
	}
	for i, opt := range opts {
		if opt.CondVar != "" && !ValidOperator(opt.CondOp) {
			return fmt.Errorf("option %d: unknown condition operator %q", i, opt.CondOp)
		}
	}
	return nil
}

// nodeTargets collects every page reference a node can branch to; empty
// strings mean fall-through and are allowed.
func nodeTargets(n *Node) []string {
	switch p := n.Payload.(type) {
	case *ChoicePayload:
		return optionTargets(p.Options)
	case *InlineChoicePayload:
		return append(optionTargets(p.Options), p.ContinueTargetPageID)
	case *GotoPayload:
		return []string{p.TargetPageID}
	case *ConditionPayload:
		return []string{p.TruePageID, p.FalsePageID}
	case *CoinPayload:
		return append(p.common().targets(), p.HeadsTargetPageID, p.TailsTargetPageID)
	case *DicePayload:
		targets := p.common().targets()
		for _, r := range p.Ranges {
			targets = append(targets, r.TargetPageID)
		}
		for _, f := range p.Faces {
			targets = append(targets, f.TargetPageID)
		}
		return targets
	case *WheelPayload:
		targets := p.common().targets()
		for _, seg := range p.Segments {
			targets = append(targets, seg.TargetPageID)
		}
		return targets
	case *RPSPayload:
		return append(p.common().targets(), p.WinTargetPageID, p.LoseTargetPageID, p.TieTargetPageID)
	case *GuessPayload:
		return append(p.common().targets(), p.SuccessTargetPageID, p.FailTargetPageID)
	case *SlotsPayload:
		return append(p.common().targets(), p.JackpotTargetPageID, p.PairTargetPageID, p.MissTargetPageID)
	}
	return nil
}

func optionTargets(opts []ChoiceOption) []string {
	targets := make([]string, 0, len(opts))
	for _, opt := range opts {
		targets = append(targets, opt.TargetPageID)
	}
	return targets
}
