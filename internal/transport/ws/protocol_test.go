package ws

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
)

func TestDecodeGetPostsRequest(t *testing.T) {
	raw := []byte(`{"type":"get_posts","user_id":42,"page":1,"limit":20,"category":"travel","filters":{"sort":"rating"},"search":"hiking"}`)

	req, meta, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if meta.UserID != 42 || meta.Type != TypeGetPosts {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	getPosts, ok := req.(*GetPostsRequest)
	if !ok {
		t.Fatalf("unexpected request type %T", req)
	}

	q, err := getPosts.Query()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if q.Sort != enums.SortRating || q.Category != "travel" || q.Search != "hiking" || q.Page != 1 || q.Limit != 20 {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"type":"drop_tables","user_id":1}`),
		[]byte(`{"user_id":1}`),
		[]byte(`not json`),
		[]byte(`{"type":"like_post","user_id":1,"post_id":"seven"}`),
	}
	for _, raw := range cases {
		if _, _, err := DecodeRequest(raw); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("DecodeRequest(%s) err = %v, want validation error", raw, err)
		}
	}
}

func TestGetPostsRejectsUnknownSort(t *testing.T) {
	req := &GetPostsRequest{Filters: PostsFilters{Sort: "random"}}
	if _, err := req.Query(); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEncodeEventEnvelope(t *testing.T) {
	data, err := EncodeEvent(model.PostDeleted{PostID: 9, Reason: "author"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var raw struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if raw.Type != "post_deleted" {
		t.Fatalf("unexpected type %q", raw.Type)
	}
	if int(raw.Payload["post_id"].(float64)) != 9 {
		t.Fatalf("unexpected payload %+v", raw.Payload)
	}
}

func TestErrorEventMapping(t *testing.T) {
	event := errorEvent(errs.ErrAlreadyReported, "r1")
	errEvent, ok := event.(model.ErrorEvent)
	if !ok || errEvent.Code != "already_reported" || errEvent.RequestID != "r1" {
		t.Fatalf("unexpected event %#v", event)
	}

	if _, ok := errorEvent(errs.ErrBanned, "").(model.Banned); !ok {
		t.Fatalf("expected banned event")
	}
}
