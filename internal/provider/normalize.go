package provider

import (
	"encoding/json"
	"strings"

	"forge/internal/domain"
)

// The provider wraps payloads inconsistently: sometimes the fields sit at the
// top level, sometimes nested under one of a handful of envelope keys. The
// probe order is data-driven so a newly observed shape is one more table
// entry, not another branch.
var envelopeRoots = []string{"", "data", "output", "result", "response"}

// Keys that may carry one artifact URL.
var artifactURLKeys = []string{
	"url",
	"artifact_url",
	"image_url",
	"video_url",
	"audio_url",
	"model_url",
	"file_url",
}

// Keys that may carry a list of artifact URLs or artifact objects.
var artifactListKeys = []string{
	"urls",
	"artifacts",
	"image_urls",
	"outputs",
	"files",
}

// Keys that may carry the request id in a submit response.
var requestIDKeys = []string{"request_id", "requestId", "id", "task_id", "job_id"}

// Keys that may carry the raw status string.
var statusKeys = []string{"status", "state", "task_status", "job_status"}

// ExtractRequestID probes a submit response for the provider-assigned id.
func ExtractRequestID(payload []byte) (string, bool) {
	for _, root := range envelopeRoots {
		obj, ok := envelopeAt(payload, root)
		if !ok {
			continue
		}
		for _, key := range requestIDKeys {
			if id := stringField(obj, key); id != "" {
				return id, true
			}
		}
	}
	return "", false
}

// ExtractStatus probes a status payload for the raw provider status string.
func ExtractStatus(payload []byte) (string, bool) {
	for _, root := range envelopeRoots {
		obj, ok := envelopeAt(payload, root)
		if !ok {
			continue
		}
		for _, key := range statusKeys {
			if s := stringField(obj, key); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// ExtractResult probes a payload for output artifacts, trying each known
// envelope in priority order and returning the first non-empty match. The
// provider sometimes embeds the completed artifact directly in the status
// response, so callers probe status payloads with this function too.
func ExtractResult(payload []byte) (*domain.JobResult, bool) {
	for _, root := range envelopeRoots {
		obj, ok := envelopeAt(payload, root)
		if !ok {
			continue
		}
		if artifacts := artifactsFrom(obj); len(artifacts) > 0 {
			return &domain.JobResult{Artifacts: artifacts}, true
		}
	}
	return nil, false
}

// ExtractError probes a payload for a provider-supplied failure message.
func ExtractError(payload []byte) string {
	for _, root := range envelopeRoots {
		obj, ok := envelopeAt(payload, root)
		if !ok {
			continue
		}
		if msg := firstString(obj, "error", "error_message", "message", "reason"); msg != "" {
			return msg
		}
	}
	return ""
}

func envelopeAt(payload []byte, root string) (map[string]json.RawMessage, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, false
	}
	if root == "" {
		return top, true
	}
	nested, ok := top[root]
	if !ok {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(nested, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func artifactsFrom(obj map[string]json.RawMessage) []domain.Artifact {
	for _, key := range artifactListKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if artifacts := decodeArtifactList(raw); len(artifacts) > 0 {
			return attachMetadata(artifacts, obj)
		}
	}
	for _, key := range artifactURLKeys {
		if url := stringField(obj, key); url != "" {
			return attachMetadata([]domain.Artifact{{URL: url}}, obj)
		}
	}
	return nil
}

func decodeArtifactList(raw json.RawMessage) []domain.Artifact {
	// Either a list of URL strings or a list of artifact objects.
	var urls []string
	if err := json.Unmarshal(raw, &urls); err == nil {
		var out []domain.Artifact
		for _, u := range urls {
			if strings.TrimSpace(u) != "" {
				out = append(out, domain.Artifact{URL: strings.TrimSpace(u)})
			}
		}
		return out
	}

	var objs []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil
	}
	var out []domain.Artifact
	for _, o := range objs {
		var url string
		for _, key := range artifactURLKeys {
			if url = stringField(o, key); url != "" {
				break
			}
		}
		if url == "" {
			continue
		}
		out = append(out, domain.Artifact{
			URL:         url,
			ContentType: stringField(o, "content_type"),
			FileName:    firstString(o, "file_name", "filename", "name"),
			FileSize:    intField(o, "file_size"),
		})
	}
	return out
}

func attachMetadata(artifacts []domain.Artifact, obj map[string]json.RawMessage) []domain.Artifact {
	contentType := stringField(obj, "content_type")
	fileName := firstString(obj, "file_name", "filename")
	fileSize := intField(obj, "file_size")
	for i := range artifacts {
		if artifacts[i].ContentType == "" {
			artifacts[i].ContentType = contentType
		}
		if artifacts[i].FileName == "" {
			artifacts[i].FileName = fileName
		}
		if artifacts[i].FileSize == 0 {
			artifacts[i].FileSize = fileSize
		}
	}
	return artifacts
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if s := stringField(obj, key); s != "" {
			return s
		}
	}
	return ""
}

func intField(obj map[string]json.RawMessage, key string) int64 {
	raw, ok := obj[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}
