package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFlow = `
id: tease
name: Tease Scene
trigger:
  type: button_press
  label: Tease
startPage: intro
pages:
  - id: intro
    name: Intro
    nodes:
      - kind: narration
        text: "The lights dim."
      - kind: declare_variable
        name: mood
        default: calm
      - kind: choice
        prompt: "What now?"
        options:
          - text: "Go on"
            targetPageId: scene
          - text: "Stop here"
            setVar: mood
            setVal: done
  - id: scene
    nodes:
      - kind: parallel_container
        children:
          - kind: mock_pump
            action: cycle
            duration: 1
            interval: 0.5
            cycles: 2
          - kind: delay
            seconds: 1.5
      - kind: challenge_dice
        diceType: 6
        mode: ranges
        resultVariable: roll
        ranges:
          - { min: 1, max: 3, label: low, targetPageId: intro }
          - { min: 4, max: 6, label: high }
      - kind: end
        ending: good
`

func TestLoaderParsesTypedPayloads(t *testing.T) {
	g, err := NewFlowLoader().Parse([]byte(sampleFlow))
	require.NoError(t, err)

	assert.Equal(t, "tease", g.ID)
	assert.Equal(t, "intro", g.StartPageID)
	assert.Equal(t, TriggerButtonPress, g.Trigger.Type)
	assert.Equal(t, []string{"intro", "scene"}, g.PageOrder)

	intro := g.Pages["intro"]
	require.Len(t, intro.Nodes, 3)

	text, ok := intro.Nodes[0].Payload.(*TextPayload)
	require.True(t, ok)
	assert.Equal(t, "The lights dim.", text.Text)

	choice, ok := intro.Nodes[2].Payload.(*ChoicePayload)
	require.True(t, ok)
	require.Len(t, choice.Options, 2)
	assert.Equal(t, "scene", choice.Options[0].TargetPageID)
	assert.Equal(t, "mood", choice.Options[1].SetVar)

	scene := g.Pages["scene"]
	par, ok := scene.Nodes[0].Payload.(*ParallelPayload)
	require.True(t, ok)
	require.Len(t, par.Children, 2)

	pump, ok := par.Children[0].Payload.(*PumpPayload)
	require.True(t, ok)
	assert.Equal(t, "cycle", pump.Action)
	assert.Equal(t, 2, pump.Cycles)
	assert.InDelta(t, 0.5, pump.Interval, 1e-9)

	dice, ok := scene.Nodes[1].Payload.(*DicePayload)
	require.True(t, ok)
	assert.Equal(t, 6, dice.DiceType)
	assert.Equal(t, "roll", dice.ResultVariable)
}

func TestLoaderRejectsDanglingTarget(t *testing.T) {
	_, err := NewFlowLoader().Parse([]byte(`
id: broken
startPage: a
pages:
  - id: a
    nodes:
      - kind: goto_page
        targetPageId: nowhere
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestLoaderRejectsBadParallelChild(t *testing.T) {
	_, err := NewFlowLoader().Parse([]byte(`
id: broken
startPage: a
pages:
  - id: a
    nodes:
      - kind: parallel_container
        children:
          - kind: popup
            text: "not allowed here"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel")
}

func TestLoaderRejectsMistypedUntilKind(t *testing.T) {
	_, err := NewFlowLoader().Parse([]byte(`
id: broken
startPage: a
pages:
  - id: a
    nodes:
      - kind: mock_pump
        action: on
        untilEnabled: true
        untilType: capcity
        untilValue: 60
        blockContinue: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capcity")
}

func TestLoaderRejectsUnknownKind(t *testing.T) {
	_, err := NewFlowLoader().Parse([]byte(`
id: broken
startPage: a
pages:
  - id: a
    nodes:
      - kind: teleport
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

// A marshalled graph must load back to the same structure, so saved flows
// never drift through a load/save cycle.
func TestLoaderRoundTrip(t *testing.T) {
	loader := NewFlowLoader()
	g1, err := loader.Parse([]byte(sampleFlow))
	require.NoError(t, err)

	data, err := loader.Marshal(g1)
	require.NoError(t, err)

	g2, err := loader.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, g1.ID, g2.ID)
	assert.Equal(t, g1.StartPageID, g2.StartPageID)
	assert.Equal(t, g1.PageOrder, g2.PageOrder)
	for _, pageID := range g1.PageOrder {
		p1, p2 := g1.Pages[pageID], g2.Pages[pageID]
		require.Len(t, p2.Nodes, len(p1.Nodes))
		for i := range p1.Nodes {
			assert.Equal(t, p1.Nodes[i].Kind, p2.Nodes[i].Kind)
			assert.Equal(t, p1.Nodes[i].Payload, p2.Nodes[i].Payload, "page %s node %d", pageID, i)
		}
	}
}
