package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/listening-buddy/backend/internal/model/insight"
	"github.com/listening-buddy/backend/internal/store"
)

// InterestSummarizer is the oracle slice the profile builder needs.
type InterestSummarizer interface {
	SummarizeInterests(ctx context.Context, likes string) (string, error)
}

// LikesSource provides the raw signal the profile is built from.
type LikesSource interface {
	FetchLikedTexts(ctx context.Context, max int) ([]string, error)
}

// ProfileService maintains the single process-wide interest profile: built
// from the user's likes at most once, then served from the cache until a
// caller forces a refresh.
type ProfileService struct {
	store      *store.Store
	likes      LikesSource
	summarizer InterestSummarizer
	logger     *log.Logger

	mu sync.Mutex
}

// NewProfileService wires the profile builder.
func NewProfileService(st *store.Store, likes LikesSource, summarizer InterestSummarizer, logger *log.Logger) *ProfileService {
	return &ProfileService{
		store:      st,
		likes:      likes,
		summarizer: summarizer,
		logger:     logger,
	}
}

const (
	likesFetchMax    = 50
	profileSampleMax = 10
)

// Get returns the cached profile, building it on first use or when force is
// set.
func (p *ProfileService) Get(ctx context.Context, force bool) (insight.InterestProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !force {
		if profile, ok := p.store.ReadProfile(); ok {
			return profile, nil
		}
	}

	texts, err := p.likes.FetchLikedTexts(ctx, likesFetchMax)
	if err != nil {
		return insight.InterestProfile{}, fmt.Errorf("failed to fetch likes: %w", err)
	}
	if len(texts) == 0 {
		return insight.InterestProfile{}, fmt.Errorf("no liked posts available to profile")
	}

	rawLikes := strings.Join(texts, "\n")
	themes, err := p.summarizer.SummarizeInterests(ctx, rawLikes)
	if err != nil {
		return insight.InterestProfile{}, fmt.Errorf("failed to summarize likes: %w", err)
	}

	sample := texts
	if len(sample) > profileSampleMax {
		sample = sample[:profileSampleMax]
	}

	profile := insight.InterestProfile{
		Themes:      themes,
		RawLikes:    rawLikes,
		SampleItems: sample,
		GeneratedAt: time.Now().UTC(),
	}
	if err := p.store.WriteProfile(profile); err != nil {
		return insight.InterestProfile{}, err
	}

	p.logger.Info("interest profile generated", "likes", len(texts))
	return profile, nil
}

// Text returns the profile theme summary for prompt use, empty when no
// profile can be produced. Enrichment never fails on a missing profile.
func (p *ProfileService) Text(ctx context.Context) string {
	p.mu.Lock()
	if profile, ok := p.store.ReadProfile(); ok {
		p.mu.Unlock()
		return profile.Themes
	}
	p.mu.Unlock()

	profile, err := p.Get(ctx, false)
	if err != nil {
		p.logger.Debug("interest profile unavailable", "error", err)
		return ""
	}
	return profile.Themes
}
