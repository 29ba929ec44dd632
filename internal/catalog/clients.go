package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/offerdesk/pricebook/internal/embedding"
	"github.com/offerdesk/pricebook/internal/models"
	"github.com/offerdesk/pricebook/internal/vector"
)

// ErrEmptyClients is returned when the clients file yields no usable records.
var ErrEmptyClients = errors.New("no usable records in clients file")

// BuildClients reads the client directory CSV and produces a snapshot. The
// file must have client_name and client_address columns; any other column is
// kept in Extra. Search text is "name address" lowercased, and rows where it
// is empty are dropped.
func BuildClients(ctx context.Context, path string, emb embedding.Embedder) (*ClientSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clients file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyClients, path)
	}

	header := records[0]
	nameCol := findColumn(header, "client_name")
	addrCol := findColumn(header, "client_address")
	if nameCol < 0 || addrCol < 0 {
		return nil, fmt.Errorf("clients file %s missing client_name or client_address column", path)
	}

	var clients []models.ClientRecord
	texts := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		rec := models.ClientRecord{
			Name:    strings.TrimSpace(cellAt(row, nameCol)),
			Address: strings.TrimSpace(cellAt(row, addrCol)),
		}
		rec.SearchText = strings.ToLower(strings.TrimSpace(rec.Name + " " + rec.Address))
		if rec.SearchText == "" {
			continue
		}
		for i, name := range header {
			if i == nameCol || i == addrCol {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(name))
			val := strings.TrimSpace(cellAt(row, i))
			if key == "" || val == "" {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[key] = val
		}
		clients = append(clients, rec)
		texts = append(texts, rec.SearchText)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyClients, path)
	}

	embeddings, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed clients: %w", err)
	}
	index, err := vector.NewFlatIndex(emb.Dimensions())
	if err != nil {
		return nil, err
	}
	if err := index.Append(embeddings); err != nil {
		return nil, err
	}

	return &ClientSnapshot{Clients: clients, Index: index, BuiltAt: time.Now()}, nil
}
