package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"HisCollect/internal/di"
	"HisCollect/internal/domain/models"
	"HisCollect/internal/usecase"
	"HisCollect/pkg/util"
)

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	req, err := buildRequest()
	if err != nil {
		return err
	}

	tools, cleanup, err := di.InitializeTools(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	col, err := tools.Collector.Collect(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if asFrame {
		return enc.Encode(models.CollectFrameResponse{
			ID:       col.Request.ID,
			Status:   col.Status,
			Table:    usecase.AssembleItems(col.Items),
			Failures: col.Failures,
		})
	}
	return enc.Encode(models.CollectItemsResponse{
		ID:       col.Request.ID,
		Status:   col.Status,
		Items:    col.Items,
		Failures: col.Failures,
	})
}

func buildRequest() (models.CollectRequest, error) {
	start, err := util.ParseDay(startDay)
	if err != nil {
		return models.CollectRequest{}, fmt.Errorf("--start: %w", err)
	}
	end, err := util.ParseDay(endDay)
	if err != nil {
		return models.CollectRequest{}, fmt.Errorf("--end: %w", err)
	}
	w := models.NewWindow(start, end)
	frame := models.DefaultDirectives(w, stockIDs, brokerIDs)
	for _, d := range frame {
		d.Limit = limit
	}
	return models.CollectRequest{
		Market:    models.Market(market),
		Method:    models.Method(method),
		Window:    w,
		StockIDs:  stockIDs,
		BrokerIDs: brokerIDs,
		Frame:     frame,
	}, nil
}
