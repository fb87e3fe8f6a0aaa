// Package docs registers the bridge's OpenAPI document with swag so
// gin-swagger can serve it. It mirrors the @ annotations on
// cmd/meshtastic-bridge and internal/outbound; regenerate with
// `swag init -g cmd/meshtastic-bridge/main.go -o internal/docs`.
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
        "/send-message": {
            "post": {
                "description": "Normalizes the destination node id and transmits the message over the radio",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["outbound"],
                "summary": "Inject a text message into the mesh",
                "parameters": [
                    {
                        "description": "Destination and text",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.OutboundSendRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.OutboundSendResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Radio, router and Redis health",
                "responses": {
                    "200": {"description": "healthy or degraded"},
                    "503": {"description": "unhealthy"}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["health"],
                "summary": "Prometheus metrics",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "models.OutboundSendRequest": {
            "type": "object",
            "required": ["to", "message"],
            "properties": {
                "to": {"description": "Node number as a JSON number, decimal string or !hex id"},
                "message": {"type": "string"}
            }
        },
        "models.OutboundSendResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "sent"}}
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_code": {"type": "string"}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Meshtastic Bridge API",
	Description:      "Relays mesh commands to the router and injects router messages into the mesh",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
