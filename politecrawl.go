// Package politecrawl is a polite crawl engine: the shared machinery that
// scraping templates reuse to fetch pages safely, respect site policy,
// paginate, and extract structured records via configurable selectors.
//
// Site-specific selector knowledge is supplied externally as an
// ExtractionRuleSet; storage and export of the extracted records is the
// caller's concern.
package politecrawl

import (
	"context"
	"sync"
)

// TargetConfig holds the configuration for a single crawl session.
type TargetConfig struct {
	Name   string
	Url    string
	Engine Engine
	Rules  ExtractionRuleSet
}

// MultiCrawler runs several crawl sessions concurrently, one per target.
// Sessions are independent: each owns its own pacing, budgets, and robots
// cache, so targets should point at distinct hosts. Parallelism is bounded
// by the worker count of the first target's engine.
type MultiCrawler struct {
	Configs []TargetConfig
}

func New() *MultiCrawler {
	return &MultiCrawler{}
}

func (m *MultiCrawler) AddTarget(config TargetConfig) *MultiCrawler {
	m.Configs = append(m.Configs, config)
	return m
}

// Start crawls every configured target and returns the reports keyed by
// target name. Individual session failures do not stop the others.
func (m *MultiCrawler) Start(ctx context.Context) map[string]*CrawlReport {
	workers := getDefaultEngine().WorkerCount
	if len(m.Configs) > 0 && m.Configs[0].Engine.WorkerCount > 0 {
		workers = m.Configs[0].Engine.WorkerCount
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, workers)
	reports := make(map[string]*CrawlReport, len(m.Configs))

	for _, config := range m.Configs {
		wg.Add(1)
		go func(cfg TargetConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			app := NewCrawler(cfg.Name, cfg.Url, cfg.Engine)
			report, err := app.Crawl(ctx, cfg.Rules)
			if err != nil {
				app.Logger.Error("crawl failed: %v", err)
			}
			mu.Lock()
			reports[cfg.Name] = report
			mu.Unlock()
		}(config)
	}

	wg.Wait()
	return reports
}
