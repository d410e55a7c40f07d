// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package protocol encodes the judger's JSON messages to logic and
// decodes logic's JSON control messages. The union of
// RoundConfig/RoundInfo/EndInfo is discriminated dynamically, by field
// presence, rather than typed on the wire.
package protocol

import (
	"encoding/json"
	"fmt"
)

// AIErrorKind enumerates the three error classes the judger can report to
// logic on an AI's behalf. The numeric values are part of the wire
// contract with logic.
type AIErrorKind int

const (
	RunError         AIErrorKind = 0
	TimeOutError     AIErrorKind = 1
	OutputLimitError AIErrorKind = 2
)

// LogName returns the error's identifier as it appears in the error_log
// field of the report sent to logic.
func (k AIErrorKind) LogName() string {
	switch k {
	case RunError:
		return "runError"
	case TimeOutError:
		return "timeOutError"
	case OutputLimitError:
		return "outputLimitError"
	default:
		return "unknownError"
	}
}

// RoundConfig updates the round's time limit. Length is decoded but the
// coordinator does not apply it; the output limit stays at its default.
// It is identified on the wire by a present "time" field.
type RoundConfig struct {
	State  int
	Time   int
	Length int
}

// RoundInfo carries this round's listen set and the per-AI content logic
// wants delivered. It is identified on the wire by an absent "time" field
// and a state other than -1.
type RoundInfo struct {
	State   int
	Listen  []int
	Player  []int
	Content []string
}

// EndInfo carries final per-player scores, index i = ai_id i's score. It is
// identified on the wire by state == -1.
type EndInfo struct {
	Scores []int
}

// DecodeError reports a logic message missing a required field.
type DecodeError struct {
	Field string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: missing required field %q in logic data", e.Field)
}

// logicMessage is the superset of fields any logic control message may
// carry; field presence (not a type tag) discriminates the variant.
type logicMessage struct {
	State   *int     `json:"state"`
	Time    *int     `json:"time"`
	Length  *int     `json:"length"`
	Listen  []int    `json:"listen"`
	Player  []int    `json:"player"`
	Content []string `json:"content"`
	EndInfo *string  `json:"end_info"`
}

// DecodeLogicMessage decodes one JSON payload received on logic's stdout
// into a *RoundConfig, *RoundInfo, or *EndInfo. Discrimination order is
// fixed: state == -1 first, then presence of "time".
func DecodeLogicMessage(payload []byte) (any, error) {
	var msg logicMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}

	if msg.State == nil {
		return nil, &DecodeError{Field: "state"}
	}

	if *msg.State == -1 {
		if msg.EndInfo == nil {
			return nil, &DecodeError{Field: "end_info"}
		}
		return decodeEndInfo(*msg.EndInfo)
	}

	if msg.Time == nil {
		if msg.Listen == nil {
			return nil, &DecodeError{Field: "listen"}
		}
		if msg.Player == nil {
			return nil, &DecodeError{Field: "player"}
		}
		if msg.Content == nil {
			return nil, &DecodeError{Field: "content"}
		}
		return &RoundInfo{
			State:   *msg.State,
			Listen:  msg.Listen,
			Player:  msg.Player,
			Content: msg.Content,
		}, nil
	}

	if msg.Length == nil {
		return nil, &DecodeError{Field: "length"}
	}
	return &RoundConfig{
		State:  *msg.State,
		Time:   *msg.Time,
		Length: *msg.Length,
	}, nil
}

// decodeEndInfo parses the end_info field, itself a JSON-encoded object
// with string keys "0".."9", stopping at the first missing key.
func decodeEndInfo(endInfo string) (*EndInfo, error) {
	var obj map[string]int
	if err := json.Unmarshal([]byte(endInfo), &obj); err != nil {
		return nil, fmt.Errorf("protocol: decoding end_info: %w", err)
	}

	var scores []int
	for i := 0; i < 10; i++ {
		score, ok := obj[fmt.Sprintf("%d", i)]
		if !ok {
			break
		}
		scores = append(scores, score)
	}
	return &EndInfo{Scores: scores}, nil
}

// InitMessage is the first message sent to logic after it is spawned.
type InitMessage struct {
	PlayerList []int
	PlayerNum  int
	Config     json.RawMessage
	Replay     string
}

// Encode renders the init message as its JSON wire form.
func (m InitMessage) Encode() ([]byte, error) {
	config := m.Config
	if config == nil {
		config = json.RawMessage("{}")
	}
	return json.Marshal(struct {
		PlayerList []int           `json:"player_list"`
		PlayerNum  int             `json:"player_num"`
		Config     json.RawMessage `json:"config"`
		Replay     string          `json:"replay"`
	}{
		PlayerList: m.PlayerList,
		PlayerNum:  m.PlayerNum,
		Config:     config,
		Replay:     m.Replay,
	})
}

// AINormalMessage forwards a reply received from an in-listen-set AI to
// logic, tagged with the elapsed time since the round began.
type AINormalMessage struct {
	Player    int
	Content   string
	ElapsedMS int64
}

// Encode renders the message as its JSON wire form.
func (m AINormalMessage) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Player  int    `json:"player"`
		Content string `json:"content"`
		Time    int64  `json:"time"`
	}{
		Player:  m.Player,
		Content: m.Content,
		Time:    m.ElapsedMS,
	})
}

// AIErrorMessage reports an AI error (OLE/RE/TLE) to logic on that AI's
// behalf. Its content field on the wire is itself a JSON-encoded string
// holding the error object; this double encoding is contractual, not
// accidental.
type AIErrorMessage struct {
	Player int
	State  int
	Error  AIErrorKind
}

// Encode renders the message as its JSON wire form, marshaling the inner
// error object first and embedding the result as a string.
func (m AIErrorMessage) Encode() ([]byte, error) {
	inner, err := json.Marshal(struct {
		Player int    `json:"player"`
		State  int    `json:"state"`
		Error  int    `json:"error"`
		ErrLog string `json:"error_log"`
	}{
		Player: m.Player,
		State:  m.State,
		Error:  int(m.Error),
		ErrLog: m.Error.LogName(),
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(struct {
		Player  int    `json:"player"`
		Content string `json:"content"`
	}{
		Player:  -1,
		Content: string(inner),
	})
}
