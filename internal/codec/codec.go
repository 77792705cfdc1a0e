// Package codec turns raw MQTT publishes into typed Events. It replaces the
// topic-regex-per-verb spaghetti of the original router with one
// declarative table, compiled once at package init, per the Design Notes.
package codec

import (
	"encoding/json"
	"regexp"
	"time"
)

// EventKind identifies a decoded inbound message by its verb. The zero
// value KindUnknown never appears on a successfully classified topic.
type EventKind int

const (
	KindUnknown EventKind = iota

	// member/<id>/send/*
	KindLogin
	KindLogout
	KindChooseHero
	KindStatus
	KindReconnect
	KindReplay
	KindAddBlackList
	KindQueryBlackList
	KindRemoveBlackList

	// room/<id>/send/*
	KindCreate
	KindClose
	KindStartQueue
	KindCancelQueue
	KindInvite
	KindJoin
	KindAcceptJoin
	KindKick
	KindLeave
	KindPrestart
	KindPrestartGet
	KindStart

	// game/<id>/send/*
	KindStartGame
	KindGameClose
	KindGameOver
	KindGameInfo
	KindChoose
	KindBan
	KindGameLeave
	KindExit
	KindUpload
	KindResultUpload
	KindRankgameStatus

	// server/<id>/...
	KindHeartbeat
	KindServerLogin

	// manager/<id>/send/*
	KindEquTest
	KindInsertEqu
	KindModifyUserEqu
	KindDeleteUserEqu
	KindModifyEqu
	KindNewEqu
	KindDeleteEqu
	KindModifyOption
	KindNewOption
	KindDeleteOption

	// bare debug topic, no category/id at all
	KindReset
)

// idPattern captures a user_id/room_id segment that may contain interior
// dashes (composite ids), but never a leading or trailing one — each dash
// must be sandwiched between alphanumeric runs. See DESIGN.md for the
// decision.
const idPattern = `([A-Za-z0-9]+(?:-[A-Za-z0-9]+)*)`

type route struct {
	re   *regexp.Regexp
	kind EventKind
}

// table is the ordered, disjoint-by-verb set of topic patterns. First match
// wins, but since every pattern pins an exact verb suffix, at most one ever
// matches a given topic.
var table = buildTable()

func buildTable() []route {
	verbs := []struct {
		category string
		verb     string
		kind     EventKind
	}{
		{"member", "login", KindLogin},
		{"member", "logout", KindLogout},
		{"member", "choose_hero", KindChooseHero},
		{"member", "status", KindStatus},
		{"member", "reconnect", KindReconnect},
		{"member", "replay", KindReplay},
		{"member", "add_black_list", KindAddBlackList},
		{"member", "query_black_list", KindQueryBlackList},
		{"member", "remove_black_list", KindRemoveBlackList},

		{"room", "create", KindCreate},
		{"room", "close", KindClose},
		{"room", "start_queue", KindStartQueue},
		{"room", "cancel_queue", KindCancelQueue},
		{"room", "invite", KindInvite},
		{"room", "join", KindJoin},
		{"room", "accept_join", KindAcceptJoin},
		{"room", "kick", KindKick},
		{"room", "leave", KindLeave},
		{"room", "prestart", KindPrestart},
		{"room", "prestart_get", KindPrestartGet},
		{"room", "start", KindStart},

		{"game", "start_game", KindStartGame},
		{"game", "game_close", KindGameClose},
		{"game", "game_over", KindGameOver},
		{"game", "game_info", KindGameInfo},
		{"game", "choose", KindChoose},
		{"game", "ban", KindBan},
		{"game", "leave", KindGameLeave},
		{"game", "exit", KindExit},
		{"game", "upload", KindUpload},
		{"game", "result_upload", KindResultUpload},
		{"game", "rankgame_status", KindRankgameStatus},

		{"server", "login", KindServerLogin},

		{"manager", "equ_test", KindEquTest},
		{"manager", "insert_equ", KindInsertEqu},
		{"manager", "modify_userequ", KindModifyUserEqu},
		{"manager", "delete_userequ", KindDeleteUserEqu},
		{"manager", "modify_equ", KindModifyEqu},
		{"manager", "new_equ", KindNewEqu},
		{"manager", "delete_equ", KindDeleteEqu},
		{"manager", "modify_option", KindModifyOption},
		{"manager", "new_option", KindNewOption},
		{"manager", "delete_option", KindDeleteOption},
	}

	out := make([]route, 0, len(verbs)+2)
	for _, v := range verbs {
		pattern := "^" + v.category + "/" + idPattern + "/send/" + v.verb + "$"
		out = append(out, route{re: regexp.MustCompile(pattern), kind: v.kind})
	}
	out = append(out, route{re: regexp.MustCompile(`^server/` + idPattern + `/res/heartbeat$`), kind: KindHeartbeat})
	out = append(out, route{re: regexp.MustCompile(`^reset$`), kind: KindReset})
	return out
}

// Classify matches topic against the compiled table. It returns
// (kind, id, true) on the first matching pattern, or (KindUnknown, "",
// false) if nothing matches — an unknown topic is a soft error, logged and
// dropped by the caller, never a crash.
func Classify(topic string) (EventKind, string, bool) {
	for _, r := range table {
		if m := r.re.FindStringSubmatch(topic); m != nil {
			id := ""
			if len(m) > 1 {
				id = m[1]
			}
			return r.kind, id, true
		}
	}
	return KindUnknown, "", false
}

// Envelope is the common JSON shape every inbound payload is decoded into
// before verb-specific fields are pulled out of Raw. RequestID powers the
// dedup window; it is optional on verbs that are naturally idempotent.
type Envelope struct {
	RequestID string          `json:"request_id,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// Event is the typed, routed message handed to the event engine.
type Event struct {
	Kind      EventKind
	ID        string // user_id or room_id captured from the topic
	RequestID string
	Payload   json.RawMessage
	Topic     string
	DecodedAt time.Time
}

// Decode parses the raw payload into an Envelope plus the typed Event
// wrapper. Unknown fields in the payload are ignored by design — only
// verb handlers downstream pick out the fields they need from Payload.
// Malformed JSON is a Decode soft error: the caller logs it, replies with
// {"err":...,"code":...} on the matching res topic, and the model is never
// touched.
func Decode(kind EventKind, id string, topic string, payload []byte) (*Event, error) {
	if len(payload) == 0 {
		// Several verbs (e.g. reset, query_black_list with no body) are
		// legitimately payload-less; treat empty as an empty object.
		payload = []byte("{}")
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	env.Raw = payload
	return &Event{
		Kind:      kind,
		ID:        id,
		RequestID: env.RequestID,
		Payload:   payload,
		Topic:     topic,
		DecodedAt: time.Now(),
	}, nil
}

// ResponseTopic mirrors a send topic to its res counterpart, e.g.
// "room/r1/send/create" -> "room/r1/res/create".
func ResponseTopic(topic string) string {
	re := regexp.MustCompile(`/send/`)
	return re.ReplaceAllString(topic, "/res/")
}
