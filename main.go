package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	marketdatax "github.com/YenAle-FT-Gmail/yensense/marketdata"
	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	orchestratorx "github.com/YenAle-FT-Gmail/yensense/pipeline/orchestrator"
	runstorex "github.com/YenAle-FT-Gmail/yensense/pipeline/runstore"
	stagesx "github.com/YenAle-FT-Gmail/yensense/pipeline/stages"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
	configx "github.com/YenAle-FT-Gmail/yensense/pkg/config"
	_ "github.com/YenAle-FT-Gmail/yensense/pkg/logger/autoload"
	openaix "github.com/YenAle-FT-Gmail/yensense/pkg/openaix"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openaiCfg := configx.MustNew[openaix.Config]("OPENAI")
	apiClient := openaix.NewClient(*openaiCfg)
	if apiClient == nil {
		log.Fatal().Msg("openai client not configured, set OPENAI_API_KEY")
	}

	llmCfg := configx.MustNew[llmx.Config]("LLM")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}
	meter := &llmx.UsageMeter{}
	model, err := llmx.NewClient(apiClient, meter, llmCfg.Temperature)
	if err != nil {
		log.Fatal().Err(err).Msg("model client init failed")
	}

	feedCfg := configx.MustNew[marketdatax.Config]("MARKET_FEED")
	feed := marketdatax.MustNewFeed(*feedCfg)

	pipeCfg := configx.MustNew[orchestratorx.Config]("PIPELINE")
	orch, err := orchestratorx.New(*pipeCfg, stagesx.Canonical(model, feed, *llmCfg, pipeCfg.MaxFetchRounds))
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}

	runDate := time.Now().UTC()
	snapshot := marketdatax.LoadSnapshot(ctx, feed, runDate)

	pc, runErr := orch.RunFull(ctx, runDate, snapshot)

	usage := meter.Snapshot()
	log.Info().
		Int64("prompt_tokens", usage.Prompt).
		Int64("completion_tokens", usage.Completion).
		Int64("reasoning_tokens", usage.Reasoning).
		Int64("model_calls", meter.Calls()).
		Msg("token usage")

	status := "succeeded"
	failedStage := ""
	if runErr != nil {
		status = "failed"
		if entries := pc.Log(); len(entries) > 0 {
			failedStage = entries[len(entries)-1].Stage
		}
		log.Error().Err(runErr).Str("run_id", pc.RunID).Msg("pipeline run aborted")
	} else if title, ok := pc.GetString(contractx.KeyReportTitle); ok {
		log.Info().Str("run_id", pc.RunID).Str("title", title).Msg("report generated")
	}

	storeCfg := configx.MustNew[runstorex.Config]("RUNSTORE")
	if storeCfg.Enabled() {
		archiveRun(pc, *storeCfg, status, failedStage)
	}

	if runErr != nil {
		os.Exit(1)
	}
}

// archiveRun uses its own short deadline so a slow database cannot hold the
// process open after the run itself is done.
func archiveRun(pc *statex.Context, cfg runstorex.Config, status, failedStage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := runstorex.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("run store init failed")
		return
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		log.Error().Err(err).Msg("run store schema init failed")
		return
	}
	if err := store.Archive(ctx, pc, status, failedStage); err != nil {
		log.Error().Err(err).Str("run_id", pc.RunID).Msg("run archive failed")
		return
	}
	log.Info().Str("run_id", pc.RunID).Str("status", status).Msg("run archived")
}
