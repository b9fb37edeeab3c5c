package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"HisCollect/internal/di"
	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
)

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	tools, cleanup, err := di.InitializeTools(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	res, err := loadFacts(cmd.Context(), f, tools.Store, batchSize, skipInvalid)
	log.Printf("loaded=%d skipped=%d", res.Loaded, res.Skipped)
	return err
}

type loadResult struct {
	Loaded  int
	Skipped int
}

// loadFacts upserts one envelope per line in batches per market. Blank
// lines are ignored.
func loadFacts(ctx context.Context, r io.Reader, store domrepo.FactStore, batch int, skip bool) (loadResult, error) {
	if batch <= 0 {
		batch = 500
	}
	var (
		res     loadResult
		pending = make(map[models.Market][]models.Fact)
	)
	flush := func(m models.Market) error {
		facts := pending[m]
		if len(facts) == 0 {
			return nil
		}
		if err := store.UpsertBatch(ctx, m, facts); err != nil {
			return fmt.Errorf("upsert %s: %w", m, err)
		}
		res.Loaded += len(facts)
		pending[m] = facts[:0]
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var env models.FactEnvelope
		err := json.Unmarshal(b, &env)
		var fact models.Fact
		if err == nil {
			fact, err = env.Decode()
		} else {
			err = fmt.Errorf("%w: %v", models.ErrMalformedFact, err)
		}
		if err != nil {
			if skip {
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		pending[env.Market] = append(pending[env.Market], fact)
		if len(pending[env.Market]) >= batch {
			if err := flush(env.Market); err != nil {
				return res, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return res, err
	}
	for _, m := range models.Markets() {
		if err := flush(m); err != nil {
			return res, err
		}
	}
	return res, nil
}
