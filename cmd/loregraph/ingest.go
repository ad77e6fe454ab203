package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
	"github.com/spf13/cobra"
)

// Batch is the result of one extraction call as read by the ingest command
type Batch struct {
	Entities      []model.Entity       `json:"entities"`
	Relationships []model.Relationship `json:"relationships"`
	Chunk         *model.Chunk         `json:"chunk,omitempty"`
}

var (
	batchFile string
	repair    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest an extracted batch from a JSON file",
	Long: `Ingest reads a JSON object with "entities", "relationships" and an optional
"chunk" and stores it. Use "-" to read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := readBatch(cmd.InOrStdin(), batchFile, repair)
		if err != nil {
			return err
		}

		l, logger, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer l.Close(cmd.Context())

		stats, err := l.StoreKnowledge(cmd.Context(), batch.Entities, batch.Relationships, batch.Chunk)
		if err != nil {
			logger.Error("Ingestion failed, stores may hold a partial batch", slog.String("error", err.Error()))
		}

		out, jsonErr := json.MarshalIndent(stats, "", "  ")
		if jsonErr != nil {
			return jsonErr
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return err
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&batchFile, "file", "f", "", "batch JSON file, - for stdin")
	ingestCmd.Flags().BoolVar(&repair, "repair", false, "repair malformed JSON as produced by LLM extraction")
	_ = ingestCmd.MarkFlagRequired("file")
}

// readBatch decodes a batch from the file or from stdin for "-".
// With repair set, the input is passed through jsonrepair first.
func readBatch(stdin io.Reader, path string, repair bool) (*Batch, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, helper.NewError("open batch file", err)
		}
		defer f.Close()
		r = f
	}

	if repair {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, helper.NewError("read batch", err)
		}
		repaired, err := jsonrepair.JSONRepair(string(raw))
		if err != nil {
			return nil, helper.NewError("repair batch", err)
		}
		r = strings.NewReader(repaired)
	}

	batch := &Batch{}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(batch); err != nil {
		return nil, helper.NewError("decode batch", err)
	}

	return batch, nil
}
