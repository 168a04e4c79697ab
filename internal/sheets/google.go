package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"phoneshop/internal/logger"
)

const valueInputOption = "USER_ENTERED"

// GoogleGateway talks to one spreadsheet through the Sheets v4 API.
type GoogleGateway struct {
	spreadsheetID string
	svc           *gsheets.Service
	logger        *logger.Logger
}

func NewGoogleGateway(ctx context.Context, spreadsheetID, credentialsFile string, logger *logger.Logger, opts ...option.ClientOption) (*GoogleGateway, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(gsheets.SpreadsheetsScope))

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &GoogleGateway{
		spreadsheetID: spreadsheetID,
		svc:           svc,
		logger:        logger,
	}, nil
}

func (g *GoogleGateway) Read(ctx context.Context, sheet, rng string) (*Table, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, qualify(sheet, rng)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, g.translate(sheet, err)
	}

	values := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		values[i] = make([]string, len(row))
		for j, cell := range row {
			values[i][j] = cellString(cell)
		}
	}
	return newTable(sheet, values), nil
}

func (g *GoogleGateway) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, qualify(sheet, "A1"), valueRange(rows)).
		ValueInputOption(valueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return g.translate(sheet, err)
	}
	g.logger.Debug("Appended %d rows to %s", len(rows), sheet)
	return nil
}

func (g *GoogleGateway) UpdateRange(ctx context.Context, sheet, rng string, rows [][]string) error {
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, qualify(sheet, rng), valueRange(rows)).
		ValueInputOption(valueInputOption).
		Context(ctx).
		Do()
	if err != nil {
		return g.translate(sheet, err)
	}
	return nil
}

func (g *GoogleGateway) OverwriteRange(ctx context.Context, sheet string, rows [][]string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, qualify(sheet, ""), &gsheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return g.translate(sheet, err)
	}
	return g.UpdateRange(ctx, sheet, "A1", rows)
}

// translate maps API failures onto the package sentinels.
func (g *GoogleGateway) translate(sheet string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: %v", ErrRateLimited, sheet, err)
		case apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range"):
			return fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
		}
		for _, item := range apiErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "RESOURCE_EXHAUSTED" {
				return fmt.Errorf("%w: %s: %v", ErrRateLimited, sheet, err)
			}
		}
	}
	return fmt.Errorf("sheets request on %s failed: %w", sheet, err)
}

func valueRange(rows [][]string) *gsheets.ValueRange {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}
	return &gsheets.ValueRange{Values: values}
}

func cellString(cell interface{}) string {
	switch v := cell.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	}
	return fmt.Sprint(cell)
}
