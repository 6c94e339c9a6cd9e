package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Study Planner API",
        "description": "Weekly study block scheduling, group consensus and plan generation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Blocks", "description": "Create, move and resize study blocks"},
        {"name": "Constraints", "description": "Permanent and weekly busy windows"},
        {"name": "Change Requests", "description": "Group consensus on shared sessions"},
        {"name": "Weekly Plans", "description": "Plan views, exports and generation"},
        {"name": "Commands", "description": "Typed command envelope"}
    ],
    "paths": {
        "/blocks": {
            "post": {
                "tags": ["Blocks"],
                "summary": "Create a study block",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateBlockRequest"}}],
                "responses": {
                    "201": {"description": "Applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Change request opened for the group", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blocks/move": {
            "post": {
                "tags": ["Blocks"],
                "summary": "Move a consecutive run of blocks",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/MoveBlockRequest"}}],
                "responses": {
                    "200": {"description": "Applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Change request opened for the group", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blocks/resize": {
            "post": {
                "tags": ["Blocks"],
                "summary": "Resize a consecutive run of blocks",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/ResizeBlockRequest"}}],
                "responses": {
                    "200": {"description": "Applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Change request opened for the group", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/constraints": {
            "get": {
                "tags": ["Constraints"],
                "summary": "List constraints for a week",
                "parameters": [{"in": "query", "name": "week", "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Constraints"],
                "summary": "Create a constraint",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateConstraintRequest"}}],
                "responses": {
                    "201": {"description": "Created, possibly with warnings", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps a constraint of the same scope", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/constraints/{id}": {
            "delete": {
                "tags": ["Constraints"],
                "summary": "Delete a constraint",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}, "403": {"description": "Not the owner"}}
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "Unread notifications, newest first",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark a notification as read",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Marked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown or foreign notification", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/read-all": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark every unread notification as read",
                "responses": {"200": {"description": "Marked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Courses"],
                "summary": "Active enrollments of the caller",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Enroll in a catalog course",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}],
                "responses": {
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Already enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course not in catalog", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/change-requests/pending": {
            "get": {
                "tags": ["Change Requests"],
                "summary": "Pending requests of the caller's groups",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/change-requests/{id}": {
            "get": {
                "tags": ["Change Requests"],
                "summary": "Get a change request",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/change-requests/{id}/approve": {
            "post": {
                "tags": ["Change Requests"],
                "summary": "Approve a change request",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Vote recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/change-requests/{id}/reject": {
            "post": {
                "tags": ["Change Requests"],
                "summary": "Reject a change request",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/weekly-plans/{week}": {
            "get": {
                "tags": ["Weekly Plans"],
                "summary": "Merged weekly plan of the caller",
                "parameters": [{"in": "path", "name": "week", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/weekly-plans/{week}/export": {
            "get": {
                "tags": ["Weekly Plans"],
                "summary": "Download the weekly plan",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "text/calendar"],
                "parameters": [
                    {"in": "path", "name": "week", "required": true, "type": "string"},
                    {"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf", "xlsx", "ics"]}
                ],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/weekly-plans/{week}/exports": {
            "post": {
                "tags": ["Weekly Plans"],
                "summary": "Store an export behind a signed link",
                "parameters": [
                    {"in": "path", "name": "week", "required": true, "type": "string"},
                    {"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf", "xlsx", "ics"]}
                ],
                "responses": {"201": {"description": "Link created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Weekly Plans"],
                "summary": "Download a stored export",
                "security": [],
                "parameters": [{"in": "path", "name": "token", "required": true, "type": "string"}],
                "responses": {"200": {"description": "File"}, "404": {"description": "Unknown or expired link"}}
            }
        },
        "/weekly-plans/generate": {
            "post": {
                "tags": ["Weekly Plans"],
                "summary": "Regenerate all plans for a week (admin)",
                "parameters": [{"in": "body", "name": "payload", "schema": {"type": "object", "properties": {"weekStart": {"type": "string"}}}}],
                "responses": {
                    "200": {"description": "Run report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A run is already in progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/commands": {
            "post": {
                "tags": ["Commands"],
                "summary": "Execute a planner command",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CommandRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "CreateBlockRequest": {
            "type": "object",
            "required": ["dayOfWeek", "startTime", "durationHours"],
            "properties": {
                "courseNumber": {"type": "string"},
                "courseName": {"type": "string"},
                "groupId": {"type": "string"},
                "dayOfWeek": {"type": "integer", "minimum": 0, "maximum": 6},
                "startTime": {"type": "string", "example": "10:00"},
                "durationHours": {"type": "integer", "minimum": 1},
                "workType": {"type": "string", "enum": ["personal", "group"]},
                "weekStart": {"type": "string", "example": "2026-05-03"},
                "reason": {"type": "string"}
            }
        },
        "BlockSelector": {
            "type": "object",
            "properties": {
                "blockId": {"type": "string"},
                "courseNumber": {"type": "string"},
                "courseName": {"type": "string"},
                "dayOfWeek": {"type": "integer"},
                "startTime": {"type": "string"},
                "weekStart": {"type": "string"}
            }
        },
        "MoveBlockRequest": {
            "allOf": [
                {"$ref": "#/definitions/BlockSelector"},
                {
                    "type": "object",
                    "required": ["newDayOfWeek", "newStartTime"],
                    "properties": {
                        "newDayOfWeek": {"type": "integer"},
                        "newStartTime": {"type": "string"},
                        "subRangeStart": {"type": "string"},
                        "subRangeEnd": {"type": "string"},
                        "reason": {"type": "string"}
                    }
                }
            ]
        },
        "ResizeBlockRequest": {
            "allOf": [
                {"$ref": "#/definitions/BlockSelector"},
                {
                    "type": "object",
                    "required": ["newDurationHours"],
                    "properties": {
                        "newDurationHours": {"type": "integer"},
                        "reason": {"type": "string"}
                    }
                }
            ]
        },
        "CreateConstraintRequest": {
            "type": "object",
            "required": ["title", "days", "startTime", "endTime"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "days": {"type": "array", "items": {"type": "integer"}},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"},
                "hard": {"type": "boolean"},
                "permanent": {"type": "boolean"},
                "weekStart": {"type": "string"}
            }
        },
        "EnrollRequest": {
            "type": "object",
            "required": ["courseNumber"],
            "properties": {
                "courseNumber": {"type": "string"},
                "courseName": {"type": "string"},
                "term": {"type": "string"}
            }
        },
        "CommandRequest": {
            "type": "object",
            "required": ["operation", "payload"],
            "properties": {
                "operation": {"type": "string", "enum": ["createBlock", "moveBlock", "resizeBlock", "createConstraint", "voteOnChangeRequest", "triggerWeeklyGeneration"]},
                "payload": {"type": "object"}
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
                "warnings": {"type": "array", "items": {"type": "string"}},
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
