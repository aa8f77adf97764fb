package benchmark

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sdamache/memorybench/pkg/provider"
)

// ingestor applies one configured ingestion strategy to a case and returns
// the IDs of the records it wrote, so the per-case workflow can delete them
// on exit (§3 "ingested records are owned by the running case").
type ingestor interface {
	ingest(ctx context.Context, p provider.Provider, scope provider.ScopeContext, c Case) ([]string, error)
}

func newIngestor(cfg IngestionConfig) (ingestor, error) {
	switch cfg.Strategy {
	case "simple":
		return &simpleIngestor{cfg: cfg}, nil
	case "session-based":
		return &sessionIngestor{cfg: cfg}, nil
	case "add-delete-verify":
		return nil, fmt.Errorf("benchmark: ingestion strategy %q is declared but not implemented", cfg.Strategy)
	default:
		return nil, fmt.Errorf("benchmark: unknown ingestion strategy %q", cfg.Strategy)
	}
}

// --- simple ---------------------------------------------------------------

type simpleIngestor struct{ cfg IngestionConfig }

func (s *simpleIngestor) ingest(ctx context.Context, p provider.Provider, scope provider.ScopeContext, c Case) ([]string, error) {
	raw, ok := c.Input[s.cfg.ContentField]
	if !ok {
		return nil, fmt.Errorf("benchmark: case %s missing content field %q", c.ID, s.cfg.ContentField)
	}

	var contents []string
	if s.cfg.IsArray {
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("benchmark: case %s content field %q is not an array", c.ID, s.cfg.ContentField)
		}
		for _, item := range items {
			contents = append(contents, fmt.Sprintf("%v", item))
		}
	} else {
		contents = []string{fmt.Sprintf("%v", raw)}
	}

	meta := subsetMetadata(c.Input, s.cfg.MetadataKeys)

	var ids []string
	for _, content := range contents {
		rec, err := p.AddMemory(ctx, scope, content, meta)
		if err != nil {
			return ids, fmt.Errorf("benchmark: add_memory for case %s: %w", c.ID, err)
		}
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func subsetMetadata(input map[string]any, keys []string) map[string]any {
	if len(keys) == 0 {
		return nil
	}
	m := map[string]any{}
	for _, k := range keys {
		if v, ok := input[k]; ok {
			m[k] = v
		}
	}
	return m
}

// --- session-based ----------------------------------------------------------

type sessionTurn struct {
	Speaker string
	Text    string
}

type session struct {
	Key         string // e.g. "session_1" or "1"
	Date        string
	Turns       []sessionTurn
	HasAnswer   bool
}

type sessionIngestor struct{ cfg IngestionConfig }

func (s *sessionIngestor) ingest(ctx context.Context, p provider.Provider, scope provider.ScopeContext, c Case) ([]string, error) {
	sessions, err := s.loadSessions(c)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	selected := s.selectSessions(sessions)

	var ids []string
	for _, sess := range selected {
		content := formatSessionTranscript(sess)
		rec, err := p.AddMemory(ctx, scope, content, map[string]any{"session_id": sess.Key})
		if err != nil {
			return ids, fmt.Errorf("benchmark: add_memory for session %s in case %s: %w", sess.Key, c.ID, err)
		}
		ids = append(ids, rec.ID)
	}

	var waitMs int
	if caps, err := p.GetCapabilities(ctx); err == nil {
		waitMs = caps.SystemFlags.ConvergenceWaitMs
	}
	if waitMs > 0 {
		select {
		case <-ctx.Done():
			return ids, ctx.Err()
		case <-time.After(time.Duration(waitMs) * time.Millisecond):
		}
	}

	return ids, nil
}

// loadSessions parses the case's raw input into a normalized session list,
// supporting both manifest-declared session formats (§4.B "session-based").
func (s *sessionIngestor) loadSessions(c Case) ([]session, error) {
	answerKeys := answerSessionKeySet(c, s.cfg)

	switch s.cfg.SessionsFormat {
	case "array":
		raw, ok := c.Input[s.cfg.SessionsField].([]any)
		if !ok {
			return nil, nil
		}
		sessions := make([]session, 0, len(raw))
		for i, item := range raw {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			key := fmt.Sprintf("%d", i+1)
			if v, ok := obj["id"]; ok {
				key = stringify(v)
			}
			sessions = append(sessions, session{
				Key:       key,
				Date:      stringify(obj["date"]),
				Turns:     parseTurns(obj["turns"]),
				HasAnswer: answerKeys[key],
			})
		}
		return sessions, nil

	case "dynamic_keys":
		type indexed struct {
			idx int
			sess session
		}
		var collected []indexed
		for k, v := range c.Input {
			if !strings.HasPrefix(k, s.cfg.SessionKeyPrefix) {
				continue
			}
			suffix := strings.TrimPrefix(k, s.cfg.SessionKeyPrefix)
			if suffix == "" || strings.Contains(suffix, s.cfg.DateKeySuffix) {
				continue
			}
			if s.cfg.DateKeySuffix != "" && strings.HasSuffix(k, s.cfg.DateKeySuffix) {
				continue
			}
			turnsRaw, ok := v.([]any)
			if !ok {
				continue
			}
			date := stringify(c.Input[k+s.cfg.DateKeySuffix])
			// Dynamic-key sessions are identified as "D<n>" to match the
			// evidence reference convention (evidence_parser "dialog_refs"
			// parses "D2:5" style refs), so the retrieval-metric ID space
			// lines up between ingested session headers and relevant IDs.
			dialogID := "D" + suffix
			collected = append(collected, indexed{
				idx: parseSessionIndex(suffix),
				sess: session{
					Key:       dialogID,
					Date:      date,
					Turns:     parseDynamicTurns(turnsRaw),
					HasAnswer: answerKeys[dialogID] || answerKeys[suffix],
				},
			})
		}
		sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })
		sessions := make([]session, 0, len(collected))
		for _, c := range collected {
			sessions = append(sessions, c.sess)
		}
		return sessions, nil

	default:
		return nil, fmt.Errorf("benchmark: unknown sessions_format %q", s.cfg.SessionsFormat)
	}
}

var dialogRefPattern = regexp.MustCompile(`D(\d+)`)

// answerSessionKeySet extracts the set of session identifiers a case's
// evidence/answer-session field points to, via the configured evidence
// parser, so lazy/shared ingestion modes know which sessions "contain the
// answer" (§4.B).
func answerSessionKeySet(c Case, cfg IngestionConfig) map[string]bool {
	out := map[string]bool{}

	if cfg.AnswerSessionsKey != "" {
		if raw, ok := c.Input[cfg.AnswerSessionsKey].([]any); ok {
			for _, v := range raw {
				out[stringify(v)] = true
			}
		}
	}

	if cfg.EvidenceField != "" {
		raw, ok := c.Input[cfg.EvidenceField].([]any)
		if !ok {
			return out
		}
		for _, v := range raw {
			s := stringify(v)
			if cfg.EvidenceParser == "dialog_refs" {
				if m := dialogRefPattern.FindStringSubmatch(s); m != nil {
					out[m[1]] = true
					out["D"+m[1]] = true
				}
			} else {
				out[s] = true
			}
		}
	}

	return out
}

// relevantIDsForCase returns the case's "ground truth" relevant document IDs
// for retrieval-metric scoring, in the same ID space the session ingestor
// uses for transcript headers (§4.B "Retrieval-metric ID extraction", §8 S5).
func relevantIDsForCase(c Case, cfg IngestionConfig) []string {
	if cfg.EvidenceField == "" && cfg.AnswerSessionsKey == "" {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	if cfg.AnswerSessionsKey != "" {
		if raw, ok := c.Input[cfg.AnswerSessionsKey].([]any); ok {
			for _, v := range raw {
				add(stringify(v))
			}
		}
	}

	if cfg.EvidenceField != "" {
		if raw, ok := c.Input[cfg.EvidenceField].([]any); ok {
			for _, v := range raw {
				s := stringify(v)
				if cfg.EvidenceParser == "dialog_refs" {
					if m := dialogRefPattern.FindStringSubmatch(s); m != nil {
						add("D" + m[1])
					}
				} else {
					add(s)
				}
			}
		}
	}

	return out
}

func parseSessionIndex(suffix string) int {
	n := 0
	for _, r := range suffix {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func parseTurns(raw any) []sessionTurn {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var turns []sessionTurn
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		turns = append(turns, sessionTurn{
			Speaker: stringify(obj["speaker"]),
			Text:    stringify(obj["text"]),
		})
	}
	return turns
}

// parseDynamicTurns parses {speaker, text} entries exactly as parseTurns
// does. Speaker names are kept as they appear in the data; no mapping to
// conversational roles is applied, and "speaker_a" gets no special treatment.
func parseDynamicTurns(raw []any) []sessionTurn {
	turns := parseTurns(raw)
	return turns
}

// selectSessions applies the configured mode to a session list (§4.B).
func (s *sessionIngestor) selectSessions(sessions []session) []session {
	switch s.cfg.Mode {
	case "full":
		return sessions

	case "shared":
		var answer, rest []session
		for _, sess := range sessions {
			if sess.HasAnswer {
				answer = append(answer, sess)
			} else {
				rest = append(rest, sess)
			}
		}
		sampleSize := s.cfg.SharedSampleSize - len(answer)
		if sampleSize < 5 {
			sampleSize = 5
		}
		if sampleSize > len(rest) {
			sampleSize = len(rest)
		}
		sample := evenlySpacedSample(rest, sampleSize)
		return append(answer, sample...)

	default: // "lazy"
		var answer []session
		for _, sess := range sessions {
			if sess.HasAnswer {
				answer = append(answer, sess)
			}
		}
		if len(answer) == 0 && len(sessions) > 0 {
			return sessions[:1]
		}
		return answer
	}
}

// evenlySpacedSample picks n elements from items at evenly spaced indices.
func evenlySpacedSample(items []session, n int) []session {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	if n >= len(items) {
		return items
	}
	out := make([]session, 0, n)
	step := float64(len(items)) / float64(n)
	for i := 0; i < n; i++ {
		idx := int(float64(i) * step)
		if idx >= len(items) {
			idx = len(items) - 1
		}
		out = append(out, items[idx])
	}
	return out
}

// formatSessionTranscript renders a session as a conversation transcript
// with a header the retrieval-metric ID extractor recognizes
// (§4.B "=== Session: <id> ===").
func formatSessionTranscript(s session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Session: %s ===", s.Key)
	if s.Date != "" {
		fmt.Fprintf(&b, " (%s)", s.Date)
	}
	b.WriteString("\n")
	for _, t := range s.Turns {
		role := t.Speaker
		if role == "" {
			role = "speaker_a"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Text)
	}
	return b.String()
}
