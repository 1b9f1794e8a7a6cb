package runtime

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// ChallengeCommon carries the fields every challenge kind shares: an optional
// variable to record the outcome in and an explicit no-roll escape.
type ChallengeCommon struct {
	ResultVariable   string `mapstructure:"resultVariable"`
	SkipTargetPageID string `mapstructure:"skipTargetPageId"`
}

func (c *ChallengeCommon) common() *ChallengeCommon { return c }

func (c *ChallengeCommon) targets() []string { return []string{c.SkipTargetPageID} }

// ChallengeOutcome is a resolved mini-game: the stringified value and the
// branch it selects. An empty target means continue to the next node.
// Outcomes are ephemeral; nothing beyond the variable assignment and the
// branch decision survives resolution.
type ChallengeOutcome struct {
	Value        string
	TargetPageID string
}

type CoinPayload struct {
	ChallengeCommon   `mapstructure:",squash"`
	HeadsTargetPageID string `mapstructure:"headsTargetPageId"`
	TailsTargetPageID string `mapstructure:"tailsTargetPageId"`
}

type DiceRange struct {
	Min          int    `mapstructure:"min"`
	Max          int    `mapstructure:"max"`
	Label        string `mapstructure:"label"`
	TargetPageID string `mapstructure:"targetPageId"`
}

type DiceFace struct {
	Face         int    `mapstructure:"face"`
	TargetPageID string `mapstructure:"targetPageId"`
}

type DicePayload struct {
	ChallengeCommon `mapstructure:",squash"`
	DiceType        int         `mapstructure:"diceType"`
	Mode            string      `mapstructure:"mode"`
	Ranges          []DiceRange `mapstructure:"ranges"`
	Faces           []DiceFace  `mapstructure:"faces"`
}

type WheelSegment struct {
	Label        string  `mapstructure:"label"`
	Weight       float64 `mapstructure:"weight"`
	TargetPageID string  `mapstructure:"targetPageId"`
}

type WheelPayload struct {
	ChallengeCommon `mapstructure:",squash"`
	Segments        []WheelSegment `mapstructure:"segments"`
}

type RPSPayload struct {
	ChallengeCommon  `mapstructure:",squash"`
	OpponentMove     string `mapstructure:"opponentMove"`
	PlayerVariable   string `mapstructure:"playerVariable"`
	OpponentVariable string `mapstructure:"opponentVariable"`
	WinTargetPageID  string `mapstructure:"winTargetPageId"`
	LoseTargetPageID string `mapstructure:"loseTargetPageId"`
	TieTargetPageID  string `mapstructure:"tieTargetPageId"`
}

type GuessPayload struct {
	ChallengeCommon     `mapstructure:",squash"`
	Min                 int    `mapstructure:"min"`
	Max                 int    `mapstructure:"max"`
	Attempts            int    `mapstructure:"attempts"` // 0 = unlimited
	Hints               bool   `mapstructure:"hints"`
	SuccessTargetPageID string `mapstructure:"successTargetPageId"`
	FailTargetPageID    string `mapstructure:"failTargetPageId"`
}

type SlotsPayload struct {
	ChallengeCommon     `mapstructure:",squash"`
	Symbols             []string `mapstructure:"symbols"`
	JackpotTargetPageID string   `mapstructure:"jackpotTargetPageId"`
	PairTargetPageID    string   `mapstructure:"pairTargetPageId"`
	MissTargetPageID    string   `mapstructure:"missTargetPageId"`
}

const (
	diceModeRanges = "ranges"
	diceModeDirect = "direct"
)

func (p *DicePayload) validate() error {
	if p.DiceType < 2 {
		return fmt.Errorf("diceType must be at least 2, got %d", p.DiceType)
	}
	switch p.Mode {
	case diceModeRanges:
		if len(p.Ranges) == 0 {
			return fmt.Errorf("ranges mode needs at least one range")
		}
		sorted := make([]DiceRange, len(p.Ranges))
		copy(sorted, p.Ranges)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
		for i, r := range sorted {
			if r.Min < 1 || r.Max > p.DiceType || r.Min > r.Max {
				return fmt.Errorf("range [%d-%d] is outside 1..%d", r.Min, r.Max, p.DiceType)
			}
			if i > 0 && r.Min <= sorted[i-1].Max {
				return fmt.Errorf("ranges [%d-%d] and [%d-%d] overlap", sorted[i-1].Min, sorted[i-1].Max, r.Min, r.Max)
			}
		}
	case diceModeDirect:
		for _, f := range p.Faces {
			if f.Face < 1 || f.Face > p.DiceType {
				return fmt.Errorf("face %d is outside 1..%d", f.Face, p.DiceType)
			}
		}
	default:
		return fmt.Errorf("unknown dice mode %q", p.Mode)
	}
	return nil
}

func (p *WheelPayload) validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("wheel has no segments")
	}
	for i, seg := range p.Segments {
		if seg.Weight <= 0 {
			return fmt.Errorf("segment %d has non-positive weight", i)
		}
	}
	return nil
}

func (p *RPSPayload) validate() error {
	switch p.OpponentMove {
	case "", "random", MoveRock, MovePaper, MoveScissors:
		return nil
	}
	return fmt.Errorf("unknown opponent move %q", p.OpponentMove)
}

func (p *GuessPayload) validate() error {
	if p.Min >= p.Max {
		return fmt.Errorf("guess range [%d,%d] is empty", p.Min, p.Max)
	}
	if p.Attempts < 0 {
		return fmt.Errorf("attempts must not be negative")
	}
	return nil
}

func (p *SlotsPayload) validate() error {
	if len(p.Symbols) < 2 {
		return fmt.Errorf("slots need at least two symbols")
	}
	return nil
}

// NewChallengeRNG returns the production RNG, seeded from the system CSPRNG.
// Tests pass their own fixed-seed rand.Rand for reproducible outcomes.
func NewChallengeRNG() *rand.Rand {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// Fall back to a time-free constant only if the CSPRNG is broken;
		// rand.NewSource cannot fail.
		return rand.New(rand.NewSource(1))
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}

func ResolveCoin(p *CoinPayload, rng *rand.Rand) ChallengeOutcome {
	if rng.Intn(2) == 0 {
		return ChallengeOutcome{Value: "heads", TargetPageID: p.HeadsTargetPageID}
	}
	return ChallengeOutcome{Value: "tails", TargetPageID: p.TailsTargetPageID}
}

// ResolveDice rolls a single die. In ranges mode the first matching range
// wins; overlap correction is an authoring concern, not the resolver's. A
// roll matching nothing continues to the next node.
func ResolveDice(p *DicePayload, rng *rand.Rand) ChallengeOutcome {
	roll := rng.Intn(p.DiceType) + 1
	out := ChallengeOutcome{Value: strconv.Itoa(roll)}
	switch p.Mode {
	case diceModeRanges:
		for _, r := range p.Ranges {
			if roll >= r.Min && roll <= r.Max {
				out.TargetPageID = r.TargetPageID
				return out
			}
		}
	case diceModeDirect:
		for _, f := range p.Faces {
			if f.Face == roll {
				out.TargetPageID = f.TargetPageID
				return out
			}
		}
	}
	return out
}

// ResolveWheel spins a weighted wheel via cumulative-weight sampling.
func ResolveWheel(p *WheelPayload, rng *rand.Rand) ChallengeOutcome {
	var total float64
	for _, seg := range p.Segments {
		total += seg.Weight
	}
	pick := rng.Float64() * total
	var cum float64
	for _, seg := range p.Segments {
		cum += seg.Weight
		if pick < cum {
			return ChallengeOutcome{Value: seg.Label, TargetPageID: seg.TargetPageID}
		}
	}
	last := p.Segments[len(p.Segments)-1]
	return ChallengeOutcome{Value: last.Label, TargetPageID: last.TargetPageID}
}

// Rock-paper-scissors moves and results.
const (
	MoveRock     = "rock"
	MovePaper    = "paper"
	MoveScissors = "scissors"

	RPSWin  = "win"
	RPSLose = "lose"
	RPSTie  = "tie"
)

var rpsMoves = []string{MoveRock, MovePaper, MoveScissors}

// beats maps each move to the move it defeats.
var beats = map[string]string{
	MoveRock:     MoveScissors,
	MovePaper:    MoveRock,
	MoveScissors: MovePaper,
}

// RPSResult carries both moves so the engine can record them into variables.
type RPSResult struct {
	PlayerMove   string
	OpponentMove string
	Outcome      ChallengeOutcome
}

// ResolveRPS plays one round from the player's point of view. The opponent
// move is the configured fixed move, or uniform random.
func ResolveRPS(p *RPSPayload, playerMove string, rng *rand.Rand) (RPSResult, error) {
	if beats[playerMove] == "" {
		return RPSResult{}, fmt.Errorf("unknown player move %q", playerMove)
	}
	opponent := p.OpponentMove
	if opponent == "" || opponent == "random" {
		opponent = rpsMoves[rng.Intn(len(rpsMoves))]
	}

	res := RPSResult{PlayerMove: playerMove, OpponentMove: opponent}
	switch {
	case playerMove == opponent:
		res.Outcome = ChallengeOutcome{Value: RPSTie, TargetPageID: p.TieTargetPageID}
	case beats[playerMove] == opponent:
		res.Outcome = ChallengeOutcome{Value: RPSWin, TargetPageID: p.WinTargetPageID}
	default:
		res.Outcome = ChallengeOutcome{Value: RPSLose, TargetPageID: p.LoseTargetPageID}
	}
	return res, nil
}

// ResolveSlots spins three uniform reels. All symbols equal is the jackpot,
// any two equal is a pair, otherwise a miss.
func ResolveSlots(p *SlotsPayload, rng *rand.Rand) ChallengeOutcome {
	reels := make([]string, 3)
	for i := range reels {
		reels[i] = p.Symbols[rng.Intn(len(p.Symbols))]
	}
	out := ChallengeOutcome{Value: strings.Join(reels, "|")}
	switch {
	case reels[0] == reels[1] && reels[1] == reels[2]:
		out.TargetPageID = p.JackpotTargetPageID
	case reels[0] == reels[1] || reels[1] == reels[2] || reels[0] == reels[2]:
		out.TargetPageID = p.PairTargetPageID
	default:
		out.TargetPageID = p.MissTargetPageID
	}
	return out
}

// GuessGame is the stateful number-guess mini-game: the target is rolled at
// node entry, then the player submits guesses until correct or out of
// attempts.
type GuessGame struct {
	payload *GuessPayload
	target  int
	used    int
}

// GuessResult reports one attempt. Done is set when the game reached a
// terminal outcome.
type GuessResult struct {
	Done    bool
	Hint    string
	Outcome ChallengeOutcome
}

func NewGuessGame(p *GuessPayload, rng *rand.Rand) *GuessGame {
	return &GuessGame{
		payload: p,
		target:  p.Min + rng.Intn(p.Max-p.Min+1),
	}
}

// Target exposes the rolled number for recording after the game ends.
func (g *GuessGame) Target() int { return g.target }

func (g *GuessGame) Guess(n int) GuessResult {
	g.used++
	if n == g.target {
		return GuessResult{
			Done:    true,
			Outcome: ChallengeOutcome{Value: strconv.Itoa(g.target), TargetPageID: g.payload.SuccessTargetPageID},
		}
	}
	if g.payload.Attempts > 0 && g.used >= g.payload.Attempts {
		return GuessResult{
			Done:    true,
			Outcome: ChallengeOutcome{Value: strconv.Itoa(g.target), TargetPageID: g.payload.FailTargetPageID},
		}
	}
	res := GuessResult{}
	if g.payload.Hints {
		if n < g.target {
			res.Hint = "higher"
		} else {
			res.Hint = "lower"
		}
	}
	return res
}
