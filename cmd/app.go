package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adalundhe/mosaic/core/collectors"
	"github.com/adalundhe/mosaic/core/config"
	"github.com/adalundhe/mosaic/core/diversity"
	"github.com/adalundhe/mosaic/core/features"
	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/gateway"
	"github.com/adalundhe/mosaic/core/preference"
	"github.com/adalundhe/mosaic/core/providers"
	"github.com/adalundhe/mosaic/core/ranking"
	"github.com/adalundhe/mosaic/core/session"
)

// app holds the assembled pipeline for one CLI invocation.
type app struct {
	cfg          *config.Config
	gateway      *gateway.Gateway
	cache        *features.Cache
	ranker       *ranking.Ranker
	orchestrator *session.Orchestrator
	prefs        *preference.Store
}

// buildApp assembles the pipeline from configuration. With offline
// set, both tiers run on the deterministic mock backend so the CLI
// works without keys or network.
func buildApp(offline bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	adapters, err := buildAdapters(cfg, offline)
	if err != nil {
		return nil, err
	}

	var opts []gateway.Option
	opts = append(opts, gateway.WithLimiter(gateway.NewTierLimiter(cfg.Gateway.Limiter)))
	if cfg.Gateway.CacheMaxCost > 0 {
		responseCache, err := gateway.NewResponseCache(&gateway.ResponseCacheConfig{
			MaxCost: cfg.Gateway.CacheMaxCost,
			TTL:     cfg.Gateway.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("building response cache: %w", err)
		}
		opts = append(opts, gateway.WithResponseCache(responseCache))
	}

	gw, err := gateway.New(adapters, opts...)
	if err != nil {
		return nil, err
	}

	cache := features.NewCache(cfg.Features, features.NewGatewayExtractor(gw))
	ranker := ranking.New(cfg.Ranking, cache)

	pipeline, err := diversity.NewPipeline(cfg.Diversity)
	if err != nil {
		return nil, err
	}

	prefs := preference.NewStore()
	orchestrator := session.New(cfg.Session, gw, ranker, cache, pipeline, prefs)

	return &app{
		cfg:          cfg,
		gateway:      gw,
		cache:        cache,
		ranker:       ranker,
		orchestrator: orchestrator,
		prefs:        prefs,
	}, nil
}

func buildAdapters(cfg *config.Config, offline bool) (map[gateway.Tier]providers.ProviderAdapter, error) {
	if offline {
		// Deterministic canned responses for each call shape the
		// pipeline makes, so the CLI works without keys or network.
		mock := providers.NewMockProvider().
			Respond("Extract keywords", `{"keywords":["texture","light"],"themes":["warmth"],"sentiment":"calm","insight":"The material leans on tactile warmth."}`).
			Respond("Extract color palette", `{"keywords":["photo"],"themes":["memory"],"palette":["amber","cream"],"objects":["window"],"sentiment":"nostalgic","insight":"Soft light dominates the imagery."}`).
			Respond(`{"questions"`, `{"questions":["What feeling should this work leave behind?","Where does the material resist simplification?"]}`).
			Respond(`{"question"`, `{"question":"What feeling should this work leave behind?"}`).
			Fallback(`{"pieces":[` +
				`{"statement":"Lead with tactile surfaces over flat color","priority":1,"fragment_id":""},` +
				`{"statement":"Let one quiet detail carry each composition","priority":2,"fragment_id":""},` +
				`{"statement":"Keep the palette warm and slightly faded","priority":3,"fragment_id":""}]}`)

		return map[gateway.Tier]providers.ProviderAdapter{
			gateway.TierFast: mock,
			gateway.TierDeep: mock,
		}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deep, err := providers.NewAnthropicProvider(cfg.Providers.Deep)
	if err != nil {
		return nil, fmt.Errorf("building deep-tier adapter: %w", err)
	}

	var fast providers.ProviderAdapter
	switch cfg.Providers.FastBackend {
	case config.FastBackendGemini:
		fast, err = providers.NewGeminiProvider(context.Background(), cfg.Providers.Gemini)
	default:
		fast, err = providers.NewOpenAIProvider(cfg.Providers.OpenAI)
	}
	if err != nil {
		return nil, fmt.Errorf("building fast-tier adapter: %w", err)
	}

	return map[gateway.Tier]providers.ProviderAdapter{
		gateway.TierFast: fast,
		gateway.TierDeep: deep,
	}, nil
}

// dirSource loads fragments from a directory: text files become text
// fragments, recognized image extensions become image fragments with
// the filename as summary. The parent directory name doubles as a tag.
type dirSource struct {
	mu        sync.Mutex
	root      string
	fragments map[string]*fragment.Fragment
	order     []string
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

func loadFragmentDir(root string) (*dirSource, error) {
	source := &dirSource{
		root:      root,
		fragments: make(map[string]*fragment.Fragment),
	}
	if err := source.Reload(); err != nil {
		return nil, err
	}
	return source, nil
}

// Reload rescans the directory from scratch.
func (s *dirSource) Reload() error {
	fragments := make(map[string]*fragment.Fragment)
	var order []string

	err := filepath.WalkDir(s.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}

		frag, err := loadFragmentFile(s.root, path)
		if err != nil {
			return err
		}
		if frag == nil {
			return nil
		}

		fragments[frag.ID] = frag
		order = append(order, frag.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning fragment dir %s: %w", s.root, err)
	}

	s.mu.Lock()
	s.fragments = fragments
	s.order = order
	s.mu.Unlock()
	return nil
}

func loadFragmentFile(root, path string) (*fragment.Fragment, error) {
	ext := strings.ToLower(filepath.Ext(path))

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var tags []string
	if dir := filepath.Dir(rel); dir != "." {
		tags = strings.Split(dir, string(filepath.Separator))
	}
	title := strings.TrimSuffix(filepath.Base(path), ext)

	switch {
	case imageExtensions[ext]:
		return &fragment.Fragment{
			ID:        rel,
			Kind:      fragment.KindImage,
			Title:     title,
			Summary:   strings.ReplaceAll(title, "-", " "),
			ImageRef:  path,
			Tags:      tags,
			UpdatedAt: info.ModTime(),
		}, nil
	case textExtensions[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &fragment.Fragment{
			ID:        rel,
			Kind:      fragment.KindText,
			Title:     title,
			Content:   string(data),
			Tags:      tags,
			UpdatedAt: info.ModTime(),
		}, nil
	default:
		return nil, nil
	}
}

// Fragments implements collectors.FragmentSource.
func (s *dirSource) Fragments() []*fragment.Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*fragment.Fragment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.fragments[id])
	}
	return out
}

// Fragment implements collectors.FragmentSource.
func (s *dirSource) Fragment(id string) (*fragment.Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frag, ok := s.fragments[id]
	return frag, ok
}

var _ collectors.FragmentSource = (*dirSource)(nil)

// parseIntentType maps the CLI flag to an intent type.
func parseIntentType(value string) (fragment.IntentType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "clarify":
		return fragment.IntentClarify, nil
	case "expand":
		return fragment.IntentExpand, nil
	case "refine":
		return fragment.IntentRefine, nil
	default:
		return "", fmt.Errorf("unknown session type %q (want clarify, expand, or refine)", value)
	}
}

// warmCache extracts features for every fragment up front so ranking
// has signals on the first session.
func warmCache(app *app, source *dirSource) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, frag := range source.Fragments() {
		app.cache.GetFeatures(ctx, frag)
	}
}
