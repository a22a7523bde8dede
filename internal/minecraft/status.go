package minecraft

import (
	"bytes"
	"encoding/json"
	"time"
)

type versionInfo struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type playersInfo struct {
	Max    int `json:"max"`
	Online int `json:"online"`
}

type statusResponse struct {
	Version     versionInfo `json:"version"`
	Players     playersInfo `json:"players"`
	Description string      `json:"description"`
	Favicon     *string     `json:"favicon"`
	Time        int64       `json:"time"`
}

// buildStatusResponse produces the status-probe JSON body. encoding/json
// already emits compact output with no insignificant whitespace, matching
// the wire format the impersonated protocol expects.
func (h *Handler) buildStatusResponse(starting bool) ([]byte, error) {
	resp := statusResponse{
		Players: playersInfo{Max: h.cfg.MaxPlayersDisplay, Online: 0},
		Time:    time.Now().UnixMilli(),
	}
	if starting {
		resp.Version = versionInfo{Name: h.cfg.VersionTextStarting, Protocol: h.cfg.ProtocolVersion}
		resp.Description = h.cfg.MOTDStarting
	} else {
		resp.Version = versionInfo{Name: "WoL Proxy", Protocol: h.cfg.ProtocolVersion}
		resp.Description = h.cfg.MOTDOffline
	}
	return json.Marshal(resp)
}

func buildStatusResponsePacket(body []byte) ([]byte, error) {
	var payload bytes.Buffer
	if err := WriteString(&payload, string(body)); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := WritePacket(&out, 0x00, payload.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func buildPongPacket(payload int64) ([]byte, error) {
	var body bytes.Buffer
	if err := WriteLong(&body, payload); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := WritePacket(&out, 0x01, body.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func buildDisconnectPacket(reason string) ([]byte, error) {
	disconnectJSON, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: reason})
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	if err := WriteString(&body, string(disconnectJSON)); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := WritePacket(&out, 0x00, body.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
