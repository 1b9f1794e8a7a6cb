package runtime

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"screenloom/device"
)

// execNode runs one node to completion. A non-empty return is a page
// redirect; empty means fall through to the next node in document order.
func (e *Engine) execNode(exec *Execution, page *Page, n *Node) (string, error) {
	switch p := n.Payload.(type) {
	case *TextPayload:
		return "", e.execText(exec, n, p)
	case *ChoicePayload:
		return e.execChoice(exec, n, p)
	case *InlineChoicePayload:
		return e.execInlineChoice(exec, n, p)
	case *GotoPayload:
		return p.TargetPageID, nil
	case *ConditionPayload:
		return e.execCondition(exec, p), nil
	case *SetVariablePayload:
		return "", e.execSetVariable(exec, page, n, p)
	case *DeclareVariablePayload:
		if err := exec.Store.Declare(flowName(p.Name), p.Default); err != nil {
			return "", NewFlowError(ErrorTypeExpression, exec.Flow.ID, page.ID, n.DisplayLabel(), err.Error(), err)
		}
		return "", nil
	case *AvatarPayload:
		e.listeners.publish(ExecutionEvent{
			Kind:        EventAvatar,
			ExecutionID: exec.ID,
			FlowID:      exec.Flow.ID,
			PageID:      page.ID,
			Actor:       p.Actor,
			Avatar:      p.Avatar,
		})
		return "", nil
	case *DelayPayload:
		return "", e.execDelay(exec, p)
	case *PumpPayload:
		return "", e.execPump(exec, page, n, p)
	case *ParallelPayload:
		return "", e.execParallel(exec, page, n, p)
	case *PopupPayload:
		return "", e.execPopup(exec, p)
	case *ToastPayload:
		e.listeners.publish(ExecutionEvent{
			Kind:        EventToast,
			ExecutionID: exec.ID,
			FlowID:      exec.Flow.ID,
			PageID:      page.ID,
			Text:        Substitute(p.Text, exec.Store),
		})
		return "", nil
	case *CoinPayload, *DicePayload, *WheelPayload, *RPSPayload, *GuessPayload, *SlotsPayload:
		return e.execChallenge(exec, page, n)
	case *EndPayload:
		ending := p.Ending
		if ending == "" {
			ending = EndingNormal
		}
		return "", endSignal{ending: ending}
	default:
		return "", NewFlowError(ErrorTypeGraph, exec.Flow.ID, page.ID, n.DisplayLabel(), fmt.Sprintf("unhandled node kind %q", n.Kind), nil)
	}
}

func (e *Engine) execText(exec *Execution, n *Node, p *TextPayload) error {
	text := Substitute(p.Text, exec.Store)

	if p.LLMEnhance && e.enhancer != nil {
		enhanced, err := e.enhancer.Enhance(exec, text, string(n.Kind), p.Actor, p.MaxTokens)
		if err != nil {
			e.logger.WarnContext(exec, "text enhancement failed, using authored text",
				"execution", exec.ID,
				"node", n.DisplayLabel(),
				"error", err)
		} else if enhanced != "" {
			text = enhanced
		}
	}
	if err := exec.Err(); err != nil {
		return e.cancelled(exec)
	}

	e.listeners.publish(ExecutionEvent{
		Kind:        EventText,
		ExecutionID: exec.ID,
		FlowID:      exec.Flow.ID,
		Actor:       p.Actor,
		Text:        text,
	})
	return nil
}

// visibleOptions filters a node's options through their visibility
// predicates. Indices are positions in the authored list so selections stay
// stable across re-presentation.
func (e *Engine) visibleOptions(exec *Execution, opts []ChoiceOption) []PromptOption {
	var visible []PromptOption
	for i, opt := range opts {
		if opt.CondVar != "" {
			val, exists := lookupVariable(exec.Store, opt.CondVar)
			if !EvaluateCondition(val, opt.CondOp, Substitute(opt.CondVal, exec.Store), exists) {
				continue
			}
		}
		visible = append(visible, PromptOption{Index: i, Text: Substitute(opt.Text, exec.Store)})
	}
	return visible
}

// await suspends the execution on a prompt until an interaction of the
// matching kind arrives or the execution is cancelled.
func (e *Engine) await(exec *Execution, p *Prompt) (interaction, error) {
	exec.suspend(p)
	defer exec.resume()

	e.listeners.publish(ExecutionEvent{
		Kind:        EventPrompt,
		ExecutionID: exec.ID,
		FlowID:      exec.Flow.ID,
		Prompt:      p,
	})
	e.publishStatus(exec)

	// A delivery can slip past the prompt check in the window where one
	// prompt replaces another, so the kind is re-checked here; anything
	// stale is dropped rather than answering the wrong prompt.
	for {
		select {
		case in := <-exec.interactions:
			if in.kind != p.Kind {
				e.logger.WarnContext(exec, "stale interaction discarded",
					"execution", exec.ID, "want", p.Kind, "got", in.kind)
				continue
			}
			return in, nil
		case <-exec.Done():
			return interaction{}, e.cancelled(exec)
		}
	}
}

func (e *Engine) execChoice(exec *Execution, n *Node, p *ChoicePayload) (string, error) {
	for {
		visible := e.visibleOptions(exec, p.Options)
		in, err := e.await(exec, &Prompt{
			Kind:    InteractChoice,
			Text:    Substitute(p.Prompt, exec.Store),
			Options: visible,
		})
		if err != nil {
			return "", err
		}

		opt, ok := pickOption(p.Options, visible, in.option)
		if !ok {
			e.logger.WarnContext(exec, "choice selection out of range", "execution", exec.ID, "option", in.option)
			continue
		}
		if err := e.applyOptionSet(exec, opt); err != nil {
			return "", err
		}
		return opt.TargetPageID, nil
	}
}

func (e *Engine) execInlineChoice(exec *Execution, n *Node, p *InlineChoicePayload) (string, error) {
	for {
		var visible []PromptOption
		consumedAll := true
		for _, po := range e.visibleOptions(exec, p.Options) {
			if exec.isConsumed(n.ID, po.Index) {
				continue
			}
			consumedAll = false
			visible = append(visible, po)
		}
		allowContinue := consumedAll || !p.RequireAllOptions

		// Nothing left to pick and the exit is open: take it without
		// prompting.
		if len(visible) == 0 && allowContinue {
			return p.ContinueTargetPageID, nil
		}

		in, err := e.await(exec, &Prompt{
			Kind:          InteractChoice,
			Text:          Substitute(p.Prompt, exec.Store),
			Options:       visible,
			AllowContinue: allowContinue,
		})
		if err != nil {
			return "", err
		}

		if in.option == ContinueOption {
			if !allowContinue {
				e.logger.WarnContext(exec, "continue refused, options remain", "execution", exec.ID, "node", n.ID)
				continue
			}
			return p.ContinueTargetPageID, nil
		}

		opt, ok := pickOption(p.Options, visible, in.option)
		if !ok {
			e.logger.WarnContext(exec, "choice selection out of range", "execution", exec.ID, "option", in.option)
			continue
		}
		exec.markConsumed(n.ID, in.option)
		if err := e.applyOptionSet(exec, opt); err != nil {
			return "", err
		}
		if opt.TargetPageID != "" {
			return opt.TargetPageID, nil
		}
	}
}

// pickOption resolves a selected index against the currently visible set.
func pickOption(opts []ChoiceOption, visible []PromptOption, index int) (ChoiceOption, bool) {
	for _, po := range visible {
		if po.Index == index {
			return opts[index], true
		}
	}
	return ChoiceOption{}, false
}

func (e *Engine) applyOptionSet(exec *Execution, opt ChoiceOption) error {
	if opt.SetVar == "" {
		return nil
	}
	value, err := EvalValue(opt.SetVal, exec.Store)
	if err != nil {
		return NewFlowError(ErrorTypeExpression, exec.Flow.ID, "", "", err.Error(), err)
	}
	if err := exec.Store.Set(flowName(opt.SetVar), value); err != nil {
		return NewFlowError(ErrorTypeExpression, exec.Flow.ID, "", "", err.Error(), err)
	}
	return nil
}

func (e *Engine) execCondition(exec *Execution, p *ConditionPayload) string {
	val, exists := lookupVariable(exec.Store, p.Variable)
	if EvaluateCondition(val, p.Operator, Substitute(p.Value, exec.Store), exists) {
		return p.TruePageID
	}
	return p.FalsePageID
}

func (e *Engine) execSetVariable(exec *Execution, page *Page, n *Node, p *SetVariablePayload) error {
	value, err := EvalValue(p.Value, exec.Store)
	if err != nil {
		return NewFlowError(ErrorTypeExpression, exec.Flow.ID, page.ID, n.DisplayLabel(), err.Error(), err)
	}
	if err := exec.Store.Set(flowName(p.Name), value); err != nil {
		return NewFlowError(ErrorTypeExpression, exec.Flow.ID, page.ID, n.DisplayLabel(), err.Error(), err)
	}
	return nil
}

func (e *Engine) execDelay(exec *Execution, p *DelayPayload) error {
	d := time.Duration(p.Seconds * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-exec.Done():
		return e.cancelled(exec)
	}
}

func (e *Engine) execPump(exec *Execution, page *Page, n *Node, p *PumpPayload) error {
	handle, err := e.actuate(exec, n, p)
	if err != nil {
		return NewFlowError(ErrorTypeDevice, exec.Flow.ID, page.ID, n.DisplayLabel(), err.Error(), err)
	}

	if !p.BlockContinue {
		// Fire and forget: the execution owns the handle until the task
		// reaches its own terminal or the execution aborts.
		exec.ownHandle(handle)
		go func() {
			res := <-handle.Done()
			exec.disownHandle(handle)
			if res.Outcome == device.OutcomeFailed {
				e.logger.WarnContext(exec, "background actuation failed",
					"execution", exec.ID,
					"device", p.Device,
					"error", res.Err)
			}
		}()
		return nil
	}

	res := <-handle.Done()
	switch res.Outcome {
	case device.OutcomeCompleted:
		return nil
	case device.OutcomeInterrupted:
		if exec.Err() != nil {
			return e.cancelled(exec)
		}
		return NewFlowError(ErrorTypeDevice, exec.Flow.ID, page.ID, n.DisplayLabel(), "actuation interrupted", nil)
	default:
		msg := "actuation failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		return NewFlowError(ErrorTypeDevice, exec.Flow.ID, page.ID, n.DisplayLabel(), msg, res.Err)
	}
}

func (e *Engine) actuate(exec *Execution, n *Node, p *PumpPayload) (device.Handle, error) {
	deviceID := p.Device
	if deviceID == "" && n.Kind == KindMockPump {
		deviceID = "mock_pump"
	}

	req := device.Request{
		Device:   deviceID,
		Action:   device.Action(p.Action),
		Duration: time.Duration(p.Duration * float64(time.Second)),
		Interval: time.Duration(p.Interval * float64(time.Second)),
		Cycles:   p.Cycles,
		Pulses:   p.Pulses,
	}
	if p.UntilEnabled {
		req.Until = &device.Until{Kind: p.UntilType, Value: p.UntilValue}
	}
	// The execution is the context, so an abort propagates into the task.
	return e.gateway.Actuate(exec, req)
}

// execParallel starts every child's side effect concurrently and completes
// once each child with a natural completion has finished. Instantaneous
// children (variable sets, avatar changes) complete inline.
func (e *Engine) execParallel(exec *Execution, page *Page, n *Node, p *ParallelPayload) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, child := range p.Children {
		switch cp := child.Payload.(type) {
		case *SetVariablePayload:
			if err := e.execSetVariable(exec, page, child, cp); err != nil {
				fail(err)
			}
		case *AvatarPayload:
			e.listeners.publish(ExecutionEvent{
				Kind:        EventAvatar,
				ExecutionID: exec.ID,
				FlowID:      exec.Flow.ID,
				PageID:      page.ID,
				Actor:       cp.Actor,
				Avatar:      cp.Avatar,
			})
		case *DelayPayload:
			wg.Add(1)
			go func(dp *DelayPayload) {
				defer wg.Done()
				if err := e.execDelay(exec, dp); err != nil {
					fail(err)
				}
			}(cp)
		case *PumpPayload:
			handle, err := e.actuate(exec, child, cp)
			if err != nil {
				fail(NewFlowError(ErrorTypeDevice, exec.Flow.ID, page.ID, child.DisplayLabel(), err.Error(), err))
				continue
			}
			wg.Add(1)
			go func(child *Node, cp *PumpPayload) {
				defer wg.Done()
				res := <-handle.Done()
				switch res.Outcome {
				case device.OutcomeCompleted:
				case device.OutcomeInterrupted:
					if exec.Err() != nil {
						fail(e.cancelled(exec))
					} else {
						fail(NewFlowError(ErrorTypeDevice, exec.Flow.ID, page.ID, child.DisplayLabel(), "actuation interrupted", nil))
					}
				default:
					msg := "actuation failed"
					if res.Err != nil {
						msg = res.Err.Error()
					}
					fail(NewFlowError(ErrorTypeDevice, exec.Flow.ID, page.ID, child.DisplayLabel(), msg, res.Err))
				}
			}(child, cp)
		default:
			fail(NewFlowError(ErrorTypeGraph, exec.Flow.ID, page.ID, child.DisplayLabel(), fmt.Sprintf("node kind %q is not allowed inside a parallel container", child.Kind), nil))
		}
	}

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	return firstErr
}

func (e *Engine) execPopup(exec *Execution, p *PopupPayload) error {
	text := Substitute(p.Text, exec.Store)
	e.listeners.publish(ExecutionEvent{
		Kind:        EventPopup,
		ExecutionID: exec.ID,
		FlowID:      exec.Flow.ID,
		Text:        text,
	})

	in, err := e.await(exec, &Prompt{Kind: InteractConfirm, Text: text})
	if err != nil {
		return err
	}
	if !in.ok {
		return NewFlowError(ErrorTypeCancelled, exec.Flow.ID, "", "", "popup cancelled", nil)
	}
	return nil
}

func (e *Engine) execChallenge(exec *Execution, page *Page, n *Node) (string, error) {
	common := challengeCommon(n.Payload)

	// The author may offer an explicit escape without rolling.
	if common != nil && common.SkipTargetPageID != "" {
		in, err := e.await(exec, &Prompt{
			Kind: InteractConfirm,
			Text: fmt.Sprintf("Take the %s challenge?", strings.TrimPrefix(string(n.Kind), "challenge_")),
		})
		if err != nil {
			return "", err
		}
		if !in.ok {
			return common.SkipTargetPageID, nil
		}
	}

	rng := e.challengeRNG()
	var outcome ChallengeOutcome

	switch p := n.Payload.(type) {
	case *CoinPayload:
		outcome = ResolveCoin(p, rng)
	case *DicePayload:
		outcome = ResolveDice(p, rng)
	case *WheelPayload:
		outcome = ResolveWheel(p, rng)
	case *SlotsPayload:
		outcome = ResolveSlots(p, rng)
	case *RPSPayload:
		return e.execRPS(exec, page, n, p, rng)
	case *GuessPayload:
		return e.execGuess(exec, page, n, p, rng)
	}

	if err := e.recordResult(exec, page, n, common, outcome.Value); err != nil {
		return "", err
	}
	e.logger.InfoContext(exec, "challenge resolved",
		"execution", exec.ID,
		"kind", n.Kind,
		"value", outcome.Value)
	return outcome.TargetPageID, nil
}

func (e *Engine) execRPS(exec *Execution, page *Page, n *Node, p *RPSPayload, rng *rand.Rand) (string, error) {
	options := []PromptOption{
		{Index: 0, Text: MoveRock},
		{Index: 1, Text: MovePaper},
		{Index: 2, Text: MoveScissors},
	}
	moves := []string{MoveRock, MovePaper, MoveScissors}

	for {
		in, err := e.await(exec, &Prompt{Kind: InteractChoice, Text: "Rock, paper or scissors?", Options: options})
		if err != nil {
			return "", err
		}
		if in.option < 0 || in.option >= len(moves) {
			e.logger.WarnContext(exec, "unknown move selection", "execution", exec.ID, "option", in.option)
			continue
		}

		res, err := ResolveRPS(p, moves[in.option], rng)
		if err != nil {
			return "", NewFlowError(ErrorTypeExpression, exec.Flow.ID, page.ID, n.DisplayLabel(), err.Error(), err)
		}

		if p.PlayerVariable != "" {
			if err := exec.Store.Set(flowName(p.PlayerVariable), res.PlayerMove); err != nil {
				return "", NewFlowError(ErrorTypeExpression, exec.Flow.ID, page.ID, n.DisplayLabel(), err.Error(), err)
			}
		}
		if p.OpponentVariable != "" {
			if err := exec.Store.Set(flowName(p.OpponentVariable), res.OpponentMove); err != nil {
				return "", NewFlowError(ErrorTypeExpression, exec.Flow.ID, page.ID, n.DisplayLabel(), err.Error(), err)
			}
		}
		if err := e.recordResult(exec, page, n, p.common(), res.Outcome.Value); err != nil {
			return "", err
		}
		return res.Outcome.TargetPageID, nil
	}
}

func (e *Engine) execGuess(exec *Execution, page *Page, n *Node, p *GuessPayload, rng *rand.Rand) (string, error) {
	game := NewGuessGame(p, rng)
	hint := ""

	for {
		in, err := e.await(exec, &Prompt{
			Kind: InteractGuess,
			Text: fmt.Sprintf("Guess a number between %d and %d", p.Min, p.Max),
			Min:  p.Min,
			Max:  p.Max,
			Hint: hint,
		})
		if err != nil {
			return "", err
		}
		if in.n < p.Min || in.n > p.Max {
			hint = fmt.Sprintf("out of range, guess between %d and %d", p.Min, p.Max)
			continue
		}

		res := game.Guess(in.n)
		if !res.Done {
			hint = res.Hint
			continue
		}
		if err := e.recordResult(exec, page, n, p.common(), res.Outcome.Value); err != nil {
			return "", err
		}
		return res.Outcome.TargetPageID, nil
	}
}

func (e *Engine) recordResult(exec *Execution, page *Page, n *Node, common *ChallengeCommon, value string) error {
	if common == nil || common.ResultVariable == "" {
		return nil
	}
	if err := exec.Store.Set(flowName(common.ResultVariable), value); err != nil {
		return NewFlowError(ErrorTypeExpression, exec.Flow.ID, page.ID, n.DisplayLabel(), err.Error(), err)
	}
	return nil
}

func challengeCommon(payload any) *ChallengeCommon {
	type commoner interface {
		common() *ChallengeCommon
	}
	if c, ok := payload.(commoner); ok {
		return c.common()
	}
	return nil
}

// flowName normalizes an authored variable reference to its stored form.
func flowName(name string) string {
	if strings.HasPrefix(name, FlowPrefix) {
		return name
	}
	return FlowPrefix + name
}

// lookupVariable reads a variable by its authored reference: system names
// and prefixed flow names directly, bare flow names through the prefix.
func lookupVariable(s Store, name string) (string, bool) {
	if v, ok := s.Get(name); ok {
		return v, true
	}
	if IsSystemVariable(name) || strings.HasPrefix(name, FlowPrefix) {
		return "", false
	}
	return s.Get(FlowPrefix + name)
}
