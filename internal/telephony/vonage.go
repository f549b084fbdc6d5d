package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// VonageInbound captures the answer webhook fields we care about.
// Vonage sends them as query parameters on GET and as a JSON body on POST; form posts are
// accepted as well.
type VonageInbound struct {
	UUID             string `json:"uuid"`
	ConversationUUID string `json:"conversation_uuid"`
	From             string `json:"from"`
	To               string `json:"to"`
}

func ParseVonageInbound(r *http.Request) (VonageInbound, error) {
	q := r.URL.Query()
	in := VonageInbound{
		UUID:             q.Get("uuid"),
		ConversationUUID: q.Get("conversation_uuid"),
		From:             q.Get("from"),
		To:               q.Get("to"),
	}

	if r.Method == http.MethodPost && r.Body != nil {
		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch ct {
		case "application/json":
			var body VonageInbound
			if err := decodeJSON(r.Body, &body); err != nil {
				return VonageInbound{}, err
			}
			in = mergeInbound(in, body)
		case "application/x-www-form-urlencoded", "multipart/form-data":
			if err := r.ParseForm(); err != nil {
				return VonageInbound{}, err
			}
			in = mergeInbound(in, VonageInbound{
				UUID:             r.PostForm.Get("uuid"),
				ConversationUUID: r.PostForm.Get("conversation_uuid"),
				From:             r.PostForm.Get("from"),
				To:               r.PostForm.Get("to"),
			})
		}
	}

	// Numbers are matched exactly as Vonage delivers them (E.164 digits, no +).
	in.From = strings.TrimSpace(in.From)
	in.To = strings.TrimSpace(in.To)
	if in.To == "" {
		return VonageInbound{}, errors.New("telephony: missing to number")
	}
	return in, nil
}

func mergeInbound(base, over VonageInbound) VonageInbound {
	if over.UUID != "" {
		base.UUID = over.UUID
	}
	if over.ConversationUUID != "" {
		base.ConversationUUID = over.ConversationUUID
	}
	if over.From != "" {
		base.From = over.From
	}
	if over.To != "" {
		base.To = over.To
	}
	return base
}

func (v VonageInbound) ToInboundCallRequest(occurredAt time.Time) InboundCallRequest {
	return InboundCallRequest{
		ProviderCallID: v.UUID,
		From:           v.From,
		To:             v.To,
		OccurredAt:     occurredAt,
	}
}

// VonageEvent is the call status webhook body.
type VonageEvent struct {
	UUID             string `json:"uuid"`
	ConversationUUID string `json:"conversation_uuid"`
	Status           string `json:"status"`
	Direction        string `json:"direction"`
	Timestamp        string `json:"timestamp"`
}

func ParseVonageEvent(r *http.Request) (VonageEvent, error) {
	var ev VonageEvent
	if err := decodeJSON(r.Body, &ev); err != nil {
		return VonageEvent{}, err
	}
	ev.Status = strings.TrimSpace(ev.Status)
	return ev, nil
}

func decodeJSON(body io.Reader, v any) error {
	if body == nil {
		return errors.New("telephony: empty body")
	}
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("telephony: decode body: %w", err)
	}
	return nil
}

// NCCOAction is one step of a Vonage call control object.
type NCCOAction struct {
	Action   string         `json:"action"`
	Text     string         `json:"text,omitempty"`
	Endpoint []NCCOEndpoint `json:"endpoint,omitempty"`
	EventURL []string       `json:"eventUrl,omitempty"`
}

type NCCOEndpoint struct {
	Type        string            `json:"type"`
	URI         string            `json:"uri"`
	ContentType string            `json:"content-type,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// RenderNCCO maps an InboundCallResult to an NCCO.
func RenderNCCO(res InboundCallResult) ([]NCCOAction, error) {
	switch res.Action {
	case InboundCallActionTalk:
		if strings.TrimSpace(res.Message) == "" {
			return nil, errors.New("telephony: message required for talk action")
		}
		return []NCCOAction{{Action: "talk", Text: res.Message}}, nil
	case InboundCallActionConnect:
		if res.Bridge == nil || strings.TrimSpace(res.Bridge.URI) == "" {
			return nil, errors.New("telephony: bridge uri required for connect action")
		}
		a := NCCOAction{
			Action: "connect",
			Endpoint: []NCCOEndpoint{{
				Type:        "websocket",
				URI:         res.Bridge.URI,
				ContentType: res.Bridge.ContentType,
				Headers:     res.Bridge.Headers,
			}},
		}
		if res.EventURL != "" {
			a.EventURL = []string{res.EventURL}
		}
		return []NCCOAction{a}, nil
	default:
		return nil, errors.New("telephony: unknown inbound action")
	}
}
