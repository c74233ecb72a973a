// Package docs holds the swagger document of the HTTP API. Regenerate with
// `swag init -g cmd/inferhostd/docs.go -o internal/httpapi/docs` after
// changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/features": {
            "get": {
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "List discovered plugins",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.FeaturesResponse"}}}
            }
        },
        "/adapters": {
            "get": {
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "List compute adapters",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.AdaptersResponse"}}}
            }
        },
        "/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "List models",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Host status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/v1/evaluate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json", "application/x-ndjson"],
                "tags": ["evaluate"],
                "summary": "Evaluate a prompt",
                "parameters": [{"description": "Prompt", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.EvaluateRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.EvaluateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.AdapterInfo": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "vendor": {"type": "integer"},
                "architecture": {"type": "integer"},
                "driver": {"type": "object", "properties": {"major": {"type": "integer"}, "minor": {"type": "integer"}}},
                "vram_mb": {"type": "integer"}
            }
        },
        "types.AdaptersResponse": {
            "type": "object",
            "properties": {
                "adapters": {"type": "array", "items": {"$ref": "#/definitions/types.AdapterInfo"}},
                "selected": {"type": "integer", "example": 0}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid JSON body"},
                "code": {"type": "integer", "example": 400}
            }
        },
        "types.EvaluateRequest": {
            "type": "object",
            "properties": {
                "system": {"type": "string", "example": "You are a helpful NPC in a fantasy game."},
                "user": {"type": "string", "example": "Where can I buy a sword?"},
                "assistant": {"type": "string"},
                "stream": {"type": "boolean", "example": true}
            }
        },
        "types.EvaluateResponse": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "state": {"type": "string", "example": "done"},
                "feature": {"type": "string"},
                "duration_ms": {"type": "integer", "example": 812}
            }
        },
        "types.FeatureStatus": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string", "example": "nvigi.plugin.gpt.ggml.cuda"},
                "required_vendor": {"type": "string", "example": "nvidia"},
                "required_architecture": {"type": "integer"},
                "required_driver": {"type": "string", "example": "555.85"},
                "compatible": {"type": "boolean"},
                "reason": {"type": "string"},
                "loaded": {"type": "boolean"}
            }
        },
        "types.FeaturesResponse": {
            "type": "object",
            "properties": {
                "features": {"type": "array", "items": {"$ref": "#/definitions/types.FeatureStatus"}}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "guid": {"type": "string", "example": "{01F43B70-CE23-42CA-9606-74E80C5ED0B6}"},
                "plugin": {"type": "string", "example": "nvigi.plugin.gpt.ggml"},
                "name": {"type": "string", "example": "nemotron-mini-4b-instruct.gguf"},
                "path": {"type": "string"},
                "size_mb": {"type": "integer", "example": 2800}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}
            }
        },
        "types.SessionStatus": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "example": "gpt"},
                "state": {"type": "string", "example": "ready"},
                "feature": {"type": "string"},
                "backend": {"type": "string", "example": "none"},
                "evaluations": {"type": "integer"},
                "queue_len": {"type": "integer"},
                "inflight": {"type": "integer"},
                "last_used_unix": {"type": "integer"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "core_loaded": {"type": "boolean"},
                "core_path": {"type": "string"},
                "selected_adapter": {"type": "integer"},
                "loaded_features": {"type": "array", "items": {"type": "string"}},
                "sessions": {"type": "array", "items": {"$ref": "#/definitions/types.SessionStatus"}},
                "last_error": {"type": "string"},
                "uptime_seconds": {"type": "integer", "example": 3600},
                "server_time_unix": {"type": "integer", "example": 1700000000}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "inferhost API",
	Description:      "HTTP API for plugin discovery and text generation on the inference host.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
