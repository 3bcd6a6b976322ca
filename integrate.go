package stepwise

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Verdict is the verifier's judgement of an assembled answer.
type Verdict string

const (
	VerdictConsistent   Verdict = "consistent"
	VerdictInconsistent Verdict = "inconsistent"
)

// VerificationReport records the verifier's verdict and its explanation.
// An Inconsistent verdict is reported, never auto-corrected.
type VerificationReport struct {
	Verdict     Verdict
	Explanation string
}

// FinalAnswer is the externally visible result of one solve session.
type FinalAnswer struct {
	// Text is the assembled answer, built only from solved results.
	Text string

	// Complete is true when every sub-problem was solved.
	Complete bool

	// Unresolved lists, in ascending order, the indices that were not
	// solved. Empty when Complete.
	Unresolved []int

	// Verification is set for complete sessions when the verification pass
	// produced a verdict; nil when verification itself failed or the
	// session was incomplete.
	Verification *VerificationReport
}

// Integrate assembles the session's solved results, in original sub-problem
// order, into one final answer.
//
// If any sub-problem is not solved, Integrate returns a best-effort answer
// together with an ErrSolveIncomplete-wrapped error and lists the unresolved
// indices; it never fabricates a value for a missing result. For fully
// solved sessions it runs a verification pass asking the verifier model
// whether the assembled answer is consistent with the original problem. A
// verification failure never blocks the answer; the verdict is memoized on
// the session, so integrating an unchanged session twice yields the same
// answer and the same verdict.
func (s *Solver) Integrate(ctx context.Context, session *SolveSession) (FinalAnswer, error) {
	if session == nil {
		return FinalAnswer{}, errors.New("session is nil")
	}

	text := assembleAnswer(session)

	if !session.Solved() {
		unresolved := session.Unresolved()
		s.logger.Info("integration incomplete",
			zap.String("session", session.ID),
			zap.Ints("unresolved", unresolved))
		return FinalAnswer{Text: text, Unresolved: unresolved},
			fmt.Errorf("%w: %d of %d sub-problems unresolved",
				ErrSolveIncomplete, len(unresolved), len(session.Subproblems))
	}

	if session.verification == nil {
		report, err := s.verify(ctx, session, text)
		if err != nil {
			s.logger.Warn("verification pass failed",
				zap.String("session", session.ID),
				zap.Error(err))
		} else {
			session.verification = &report
		}
	}

	return FinalAnswer{Text: text, Complete: true, Verification: session.verification}, nil
}

// verify runs the secondary consistency check over the assembled answer.
// The verifier model falls back to the solve model when none is configured.
func (s *Solver) verify(ctx context.Context, session *SolveSession, answer string) (VerificationReport, error) {
	verifier := s.verifier
	if verifier == nil {
		model, err := s.resolveModel()
		if err != nil {
			return VerificationReport{}, err
		}
		verifier = model
	}

	user := buildVerifierUserPrompt(session.Problem, answer)
	s.logger.Debug("verifier prompt", zap.String("user", user))

	resp, err := verifier.Generate(ctx, verifierSystemPrompt, user, s.genOptions())
	if err != nil {
		return VerificationReport{}, fmt.Errorf("verifier: %w", err)
	}
	session.TotalCost += resp.Cost

	report, err := parseVerdict(getContent(resp))
	if err != nil {
		return VerificationReport{}, err
	}
	if report.Verdict == VerdictInconsistent {
		s.logger.Warn("assembled answer judged inconsistent",
			zap.String("session", session.ID),
			zap.String("explanation", report.Explanation))
	}
	return report, nil
}

// assembleAnswer concatenates solved results in original sub-problem order,
// regardless of the order they were executed in.
func assembleAnswer(session *SolveSession) string {
	var b strings.Builder
	for i, sub := range session.Subproblems {
		res, ok := session.Results[i]
		if !ok || res.Status != StatusSolved {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s", i+1, strings.TrimSpace(sub.Question), strings.TrimSpace(res.Answer))
	}
	return b.String()
}
