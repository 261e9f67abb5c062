// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package normalize

import "github.com/olegiv/stalkfish-go/internal/model"

// ToEvent builds the matchable view of a normalized event map.
func ToEvent(data map[string]any) model.Event {
	e := model.Event{
		Pipe:      Scalar(data[model.KeyPipe]),
		Context:   Scalar(data[model.KeyContext]),
		Action:    Scalar(data[model.KeyAction]),
		Message:   Scalar(data[model.KeyMessage]),
		Meta:      AsMap(data[model.KeyMeta]),
		Initiator: model.Initiator(Scalar(data[model.KeyInitiator])),
		IPAddress: Scalar(data[model.KeyIPAddress]),
		Date:      Scalar(data[model.KeyDate]),
		Link:      Scalar(data[model.KeyLink]),
	}
	if e.Initiator == model.InitiatorUser {
		if user, ok := data[model.KeyUser].(map[string]any); ok {
			e.Author = Scalar(user["username"])
			e.Role = Scalar(user["role"])
		}
	}
	return e
}
