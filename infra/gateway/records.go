package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/CrestNiraj12/nwitter/domain"
)

// RecordStore implements app.DocumentStore over the gateway's collections.
type RecordStore struct {
	client *Client
	live   LiveSettings
}

// NewRecordStore creates the record adapter with default live-query settings.
func NewRecordStore(client *Client) *RecordStore {
	return &RecordStore{client: client, live: DefaultLiveSettings()}
}

// WithLiveSettings overrides socket timeouts and the reconnect delay.
func (s *RecordStore) WithLiveSettings(settings LiveSettings) *RecordStore {
	s.live = settings
	return s
}

func collectionPath(collection string) string {
	return "/v1/collections/" + url.PathEscape(collection)
}

func recordPath(collection, id string) string {
	return collectionPath(collection) + "/records/" + url.PathEscape(id)
}

func (s *RecordStore) AddRecord(ctx context.Context, collection string, fields map[string]any) (string, error) {
	var resp IDResponse
	err := s.client.doJSON(ctx, "add record", http.MethodPost, collectionPath(collection)+"/records", FieldsRequest{Fields: fields}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateRecord merges fields into the record. Nil values are sent as JSON
// null, which the gateway treats as a field delete.
func (s *RecordStore) UpdateRecord(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.client.doJSON(ctx, "update record", http.MethodPatch, recordPath(collection, id), FieldsRequest{Fields: fields}, nil)
}

func (s *RecordStore) DeleteRecord(ctx context.Context, collection, id string) error {
	return s.client.doJSON(ctx, "delete record", http.MethodDelete, recordPath(collection, id), nil, nil)
}

func (s *RecordStore) Query(ctx context.Context, q domain.Query) ([]domain.Record, error) {
	var resp RecordsResponse
	err := s.client.doJSON(ctx, "query", http.MethodPost, collectionPath(q.Collection)+"/query", QuerySpecFrom(q), &resp)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}
