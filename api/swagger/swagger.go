package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Lab Timetable API",
        "description": "Weekly lab timetable editing, import and export",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Labs", "description": "Lab registry and capacity"},
        {"name": "Weeks", "description": "Weekly grid, cell edits and exports"},
        {"name": "Imports", "description": "Spreadsheet import behind a dry-run gate"},
        {"name": "Periods", "description": "Period calendar"}
    ],
    "paths": {
        "/labs": {
            "get": {
                "tags": ["Labs"],
                "summary": "List labs",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Labs"],
                "summary": "Create lab",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LabRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/labs/{id}": {
            "parameters": [
                {"name": "id", "in": "path", "required": true, "type": "integer"}
            ],
            "get": {
                "tags": ["Labs"],
                "summary": "Get lab detail",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Labs"],
                "summary": "Update lab",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LabRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Labs"],
                "summary": "Delete lab",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/labs/{id}/weeks/{date}": {
            "get": {
                "tags": ["Weeks"],
                "summary": "Weekly grid of a lab",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "path", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/labs/{id}/weeks/{date}/export": {
            "get": {
                "tags": ["Weeks"],
                "summary": "Export a lab week",
                "produces": ["text/csv", "application/pdf", "text/calendar"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "path", "required": true, "type": "string", "format": "date"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "ics"], "default": "csv"}
                ],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/labs/{id}/weeks/{date}/reconcile": {
            "post": {
                "tags": ["Weeks"],
                "summary": "Create, update or move a session",
                "description": "Warnings such as clamped durations or partially failed fragment updates are listed in meta.warnings.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "path", "required": true, "type": "string", "format": "date"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReconcileCellRequest"}}
                ],
                "responses": {
                    "200": {"description": "Settled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict, concurrent edit or stale grid", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Move left the week inconsistent", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/labs/{id}/weeks/{date}/cells/{weekday}/{period}": {
            "delete": {
                "tags": ["Weeks"],
                "summary": "Delete the session occupying a cell",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "path", "required": true, "type": "string", "format": "date"},
                    {"name": "weekday", "in": "path", "required": true, "type": "integer", "minimum": 1, "maximum": 7},
                    {"name": "period", "in": "path", "required": true, "type": "integer", "minimum": 1, "maximum": 8}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/labs/{id}/imports/preview": {
            "post": {
                "tags": ["Imports"],
                "summary": "Dry-run a timetable spreadsheet",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/labs/{id}/imports/commit": {
            "post": {
                "tags": ["Imports"],
                "summary": "Import a timetable spreadsheet",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Committed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Refused by the dry run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/periods": {
            "get": {
                "tags": ["Periods"],
                "summary": "Period windows of a date",
                "parameters": [
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "LabRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "maxLength": 100},
                "capacity": {"type": "integer", "minimum": 1, "maximum": 1000}
            },
            "required": ["name", "capacity"]
        },
        "CellRef": {
            "type": "object",
            "properties": {
                "weekday": {"type": "integer", "minimum": 1, "maximum": 7},
                "period": {"type": "integer", "minimum": 1, "maximum": 8}
            }
        },
        "DesiredEdit": {
            "type": "object",
            "properties": {
                "weekday": {"type": "integer", "minimum": 1, "maximum": 7},
                "start_period": {"type": "integer", "minimum": 1, "maximum": 8},
                "duration": {"type": "integer", "minimum": 1},
                "course": {"type": "string"},
                "teacher": {"type": "string"},
                "content": {"type": "string"},
                "enrolled": {"type": "integer", "minimum": 0},
                "class_names": {"type": "string"}
            },
            "required": ["weekday", "start_period", "duration", "course", "teacher"]
        },
        "ReconcileCellRequest": {
            "type": "object",
            "properties": {
                "current": {"$ref": "#/definitions/CellRef"},
                "desired": {"$ref": "#/definitions/DesiredEdit"},
                "confirm_overwrite": {"type": "boolean"}
            },
            "required": ["desired"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
