package segment

import (
	"strings"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/tokenizer"
)

// Segmenter splits document text into ordered, token-bounded chunks.
type Segmenter struct {
	counter tokenizer.Counter
	cfg     Config
}

// New creates a Segmenter. The config is validated up front.
func New(counter tokenizer.Counter, cfg Config) (*Segmenter, error) {
	if counter == nil {
		return nil, configError("token counter is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ShortSegments == "" {
		cfg.ShortSegments = FoldShortSegments
	}
	return &Segmenter{counter: counter, cfg: cfg}, nil
}

// Segment is a one-shot helper around New and Segmenter.Segment.
func Segment(counter tokenizer.Counter, text string, cfg Config) ([]domain.Chunk, error) {
	s, err := New(counter, cfg)
	if err != nil {
		return nil, err
	}
	return s.Segment(text)
}

// Config returns the segmenter's effective configuration.
func (s *Segmenter) Config() Config {
	return s.cfg
}

// Segment splits text into chunks with contiguous sequence indices starting
// at zero. Empty or whitespace-only text yields no chunks.
func (s *Segmenter) Segment(text string) ([]domain.Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []domain.Chunk{}, nil
	}

	if runeLen(trimmed) < s.cfg.ForceSingleChunkCharThreshold {
		return s.single(trimmed), nil
	}
	if s.counter.CountTokens(trimmed) <= s.cfg.TargetChunkTokens {
		return s.single(trimmed), nil
	}

	strategy := SelectStrategy(trimmed)
	drafts := s.merge(s.atomize(trimmed, strategy))
	return s.finalize(drafts), nil
}

func (s *Segmenter) single(text string) []domain.Chunk {
	return []domain.Chunk{{
		Content:       text,
		TokenCount:    s.counter.CountTokens(text),
		SequenceIndex: 0,
	}}
}

type atom struct {
	text   string
	tokens int
}

// draft is a chunk before filtering. overlap is the tail carried over from
// the previous chunk; fresh is text not seen in any earlier chunk.
type draft struct {
	overlap string
	fresh   string
	tokens  int
}

func (d draft) content() string {
	return strings.TrimSpace(d.overlap + d.fresh)
}

func (s *Segmenter) atomize(text string, strategy Strategy) []atom {
	var pieces []string
	switch strategy.Kind {
	case MarkupAwareSplit:
		for _, block := range splitAtOffsets(text, strategy.Boundaries) {
			pieces = s.splitRecursive(block, 0, pieces)
		}
	default:
		pieces = s.splitRecursive(text, 0, nil)
	}

	atoms := make([]atom, 0, len(pieces))
	for _, p := range pieces {
		atoms = append(atoms, atom{text: p, tokens: s.counter.CountTokens(p)})
	}
	return atoms
}

// merge packs atoms greedily up to the target, seeding each chunk after the
// first with the tail of its predecessor.
func (s *Segmenter) merge(atoms []atom) []draft {
	var (
		drafts        []draft
		window        strings.Builder
		windowTokens  int
		overlap       string
		overlapTokens int
	)

	flush := func() {
		fresh := window.String()
		window.Reset()
		windowTokens = 0
		if strings.TrimSpace(fresh) == "" {
			if n := len(drafts); n > 0 {
				drafts[n-1].fresh += fresh
			}
			return
		}
		drafts = append(drafts, draft{overlap: overlap, fresh: fresh})
		overlap = s.tail(overlap+fresh, s.cfg.ChunkOverlapTokens)
		overlapTokens = s.counter.CountTokens(overlap)
	}

	target := s.cfg.TargetChunkTokens
	for _, a := range atoms {
		if window.Len() > 0 && overlapTokens+windowTokens+a.tokens > target {
			flush()
		}
		if window.Len() == 0 && overlapTokens+a.tokens > target {
			overlap = s.tail(overlap, target-a.tokens)
			overlapTokens = s.counter.CountTokens(overlap)
		}
		window.WriteString(a.text)
		windowTokens += a.tokens
	}
	if window.Len() > 0 {
		flush()
	}
	return drafts
}

// finalize applies the short-segment policy and numbers the chunks. A chunk
// counts as short when the text it adds beyond the overlap is below
// MinChunkTokens.
func (s *Segmenter) finalize(drafts []draft) []domain.Chunk {
	for i := range drafts {
		drafts[i].tokens = s.counter.CountTokens(drafts[i].fresh)
	}

	minTokens := s.cfg.MinChunkTokens
	if minTokens > 0 && len(drafts) > 1 {
		switch s.cfg.ShortSegments {
		case DropShortSegments:
			drafts = dropShort(drafts, minTokens)
		default:
			drafts = s.foldShort(drafts, minTokens)
		}
	}

	chunks := make([]domain.Chunk, 0, len(drafts))
	for _, d := range drafts {
		content := d.content()
		if content == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Content:       content,
			TokenCount:    s.counter.CountTokens(content),
			SequenceIndex: len(chunks),
		})
	}
	return chunks
}

func dropShort(drafts []draft, minTokens int) []draft {
	kept := make([]draft, 0, len(drafts))
	largest := 0
	for i, d := range drafts {
		if d.tokens > drafts[largest].tokens {
			largest = i
		}
		if d.tokens >= minTokens {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, drafts[largest])
	}
	return kept
}

// foldShort merges short drafts into the previous draft, or into the next
// one when the previous draft has no room left. A short draft that fits
// neither neighbour is kept as is.
func (s *Segmenter) foldShort(drafts []draft, minTokens int) []draft {
	target := s.cfg.TargetChunkTokens
	for i := 0; i < len(drafts) && len(drafts) > 1; {
		if drafts[i].tokens >= minTokens {
			i++
			continue
		}
		if i > 0 {
			prev := drafts[i-1]
			fresh := prev.fresh + drafts[i].fresh
			if s.counter.CountTokens(prev.overlap+fresh) <= target {
				drafts[i-1].fresh = fresh
				drafts[i-1].tokens = s.counter.CountTokens(fresh)
				drafts = append(drafts[:i], drafts[i+1:]...)
				continue
			}
		}
		if i+1 < len(drafts) {
			fresh := drafts[i].fresh + drafts[i+1].fresh
			// the short draft's overlap repeats its predecessor, so it may shrink
			overlap := s.tail(drafts[i].overlap, target-s.counter.CountTokens(fresh))
			if s.counter.CountTokens(overlap+fresh) <= target {
				drafts[i+1] = draft{overlap: overlap, fresh: fresh, tokens: s.counter.CountTokens(fresh)}
				drafts = append(drafts[:i], drafts[i+1:]...)
				continue
			}
		}
		i++
	}
	return drafts
}
