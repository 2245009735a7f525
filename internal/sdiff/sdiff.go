// Package sdiff aligns two normalized instruction sequences and
// classifies every position as matched, inserted, deleted, or modified.
// The alignment is a Myers shortest-edit-script over whole-instruction
// tokens, followed by a merge pass that turns adjacent delete/insert
// pairs into Replace lines with operand-level sub-diffs. Given
// well-formed input it cannot fail; empty sequences are valid and yield
// all-Insert or all-Delete results.
package sdiff

import "objdiff/internal/asm"

// Kind classifies one diff line.
type Kind int

const (
	Match Kind = iota
	Insert
	Delete
	Replace
)

func (k Kind) String() string {
	switch k {
	case Match:
		return "match"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Replace:
		return "replace"
	}
	return "?"
}

// Line is one entry of the diff. Target is nil for Insert lines and Base
// is nil for Delete lines; Replace lines carry both plus the indices of
// the operands that differ.
type Line struct {
	Kind       Kind
	Target     *asm.Inst
	Base       *asm.Inst
	ChangedOps []int
}

// Result is the ordered diff. Lines follow the target sequence for
// Match/Delete/Replace with Insert lines interleaved at their base
// position, so a consumer can render a two-column view from the single
// stream.
type Result struct {
	Lines []Line
}

// Diff aligns target against base.
func Diff(target, base asm.Stream) *Result {
	raw := editScript(target, base)
	return &Result{Lines: mergeReplacements(raw)}
}

// MatchPercent is the share of target instructions classified Match,
// the statistic the batch layer scores with. An empty target counts as
// fully matched only when the base is empty too.
func (r *Result) MatchPercent() float64 {
	targetLines, matched := 0, 0
	for _, l := range r.Lines {
		if l.Target != nil {
			targetLines++
			if l.Kind == Match {
				matched++
			}
		}
	}
	if targetLines == 0 {
		if len(r.Lines) == 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(matched) * 100.0 / float64(targetLines)
}

// editScript runs greedy Myers over the token sequences. Ties between
// equal-cost scripts resolve toward the earliest-starting match, which
// keeps output deterministic and groups changes the way the follow-up
// merge pass expects.
func editScript(a, b asm.Stream) []Line {
	n, m := len(a), len(b)
	max := n + m
	if max == 0 {
		return nil
	}
	size := 2*max + 1
	v := make([]int, size)
	var trace [][]int

	var dEnd int
search:
	for d := 0; d <= max; d++ {
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[k-1+max] < v[k+1+max]) {
				x = v[k+1+max]
			} else {
				x = v[k-1+max] + 1
			}
			y := x - k
			for x < n && y < m && a[x].TokenEqual(&b[y]) {
				x++
				y++
			}
			v[k+max] = x
			if x >= n && y >= m {
				dEnd = d
				trace = append(trace, append([]int(nil), v...))
				break search
			}
		}
		trace = append(trace, append([]int(nil), v...))
	}

	// Backtrack from (n, m) through the stored contours.
	var rev []Line
	x, y := n, m
	for d := dEnd; d > 0; d-- {
		prev := trace[d-1]
		k := x - y
		var prevK int
		if k == -d || (k != d && prev[k-1+max] < prev[k+1+max]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := prev[prevK+max]
		prevY := prevX - prevK
		for x > prevX && y > prevY {
			rev = append(rev, Line{Kind: Match, Target: &a[x-1], Base: &b[y-1]})
			x--
			y--
		}
		if prevK == k+1 {
			rev = append(rev, Line{Kind: Insert, Base: &b[y-1]})
			y--
		} else {
			rev = append(rev, Line{Kind: Delete, Target: &a[x-1]})
			x--
		}
	}
	for x > 0 && y > 0 {
		rev = append(rev, Line{Kind: Match, Target: &a[x-1], Base: &b[y-1]})
		x--
		y--
	}

	out := make([]Line, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

// mergeReplacements zips each maximal Delete run with the Insert run
// that follows it; aligned pairs become Replace lines. When the
// mnemonics agree the operands are compared positionally so the common
// "right instruction, wrong register" case names the changed operand;
// when they differ every position is reported changed. Sentinel records
// never merge.
func mergeReplacements(lines []Line) []Line {
	var out []Line
	i := 0
	for i < len(lines) {
		if lines[i].Kind != Delete {
			out = append(out, lines[i])
			i++
			continue
		}
		var dels, ins []Line
		for i < len(lines) && lines[i].Kind == Delete {
			dels = append(dels, lines[i])
			i++
		}
		for i < len(lines) && lines[i].Kind == Insert {
			ins = append(ins, lines[i])
			i++
		}
		p := 0
		for ; p < len(dels) && p < len(ins); p++ {
			t, b := dels[p].Target, ins[p].Base
			if t.Unknown || b.Unknown {
				out = append(out, dels[p], ins[p])
				continue
			}
			line := Line{Kind: Replace, Target: t, Base: b}
			if t.Mnemonic == b.Mnemonic {
				line.ChangedOps = changedOperands(t, b)
			} else {
				line.ChangedOps = allOperands(t, b)
			}
			out = append(out, line)
		}
		out = append(out, dels[p:]...)
		out = append(out, ins[p:]...)
	}
	return out
}

// allOperands marks every operand position changed. Used when the
// mnemonics differ and a positional comparison would be meaningless.
func allOperands(t, b *asm.Inst) []int {
	n := len(t.Ops)
	if len(b.Ops) > n {
		n = len(b.Ops)
	}
	if n == 0 {
		return nil
	}
	changed := make([]int, n)
	for i := range changed {
		changed[i] = i
	}
	return changed
}

// changedOperands compares operand lists positionally. Decoders emit a
// fixed arity per mnemonic so the counts agree in practice; any surplus
// positions are reported changed just in case.
func changedOperands(t, b *asm.Inst) []int {
	var changed []int
	n := len(t.Ops)
	if len(b.Ops) > n {
		n = len(b.Ops)
	}
	for i := 0; i < n; i++ {
		if i >= len(t.Ops) || i >= len(b.Ops) || !t.Ops[i].Equal(b.Ops[i]) {
			changed = append(changed, i)
		}
	}
	return changed
}
