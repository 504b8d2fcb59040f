package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "TutorHub API",
        "description": "Tutoring marketplace: availability grid, booking commit, points ledger and leaderboard",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token management"},
        {"name": "Pricing", "description": "Subjects, pricing rules and quotes"},
        {"name": "Availability", "description": "Month grid and availability blocks"},
        {"name": "Bookings", "description": "Booking commit protocol"},
        {"name": "Sessions", "description": "Session lifecycle"},
        {"name": "Points", "description": "Points ledger"},
        {"name": "Leaderboard", "description": "Ranked standings"},
        {"name": "Statements", "description": "Receipt statement exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects": {
            "get": {
                "tags": ["Pricing"],
                "summary": "List bookable subjects with pricing bounds",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bookings/quote": {
            "post": {
                "tags": ["Pricing"],
                "summary": "Compute a price quote",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/QuoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Subject not configured"}
                }
            }
        },
        "/availability/grid": {
            "get": {
                "tags": ["Availability"],
                "summary": "Bookable month grid",
                "parameters": [
                    {"name": "year", "in": "query", "required": true, "type": "integer"},
                    {"name": "month", "in": "query", "required": true, "type": "integer"},
                    {"name": "subject_id", "in": "query", "required": true, "type": "string"},
                    {"name": "duration_minutes", "in": "query", "type": "integer"},
                    {"name": "owner_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/availability/blocks": {
            "get": {
                "tags": ["Availability"],
                "summary": "List availability blocks",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Availability"],
                "summary": "Declare an availability block",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bookings": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Request a booking",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot taken"},
                    "422": {"description": "Too soon or outside availability"}
                }
            }
        },
        "/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List sessions visible to the caller",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/points/balance": {
            "get": {
                "tags": ["Points"],
                "summary": "Current user's points balance",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/points/receipts": {
            "get": {
                "tags": ["Points"],
                "summary": "List points receipts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaderboard": {
            "get": {
                "tags": ["Leaderboard"],
                "summary": "Points leaderboard",
                "parameters": [
                    {"name": "mode", "in": "query", "type": "string"},
                    {"name": "window_start", "in": "query", "type": "string"},
                    {"name": "window_end", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/statements": {
            "post": {
                "tags": ["Statements"],
                "summary": "Request a points statement export",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "QuoteRequest": {
            "type": "object",
            "properties": {
                "subject_id": {"type": "string"},
                "duration_minutes": {"type": "integer"},
                "discount_percent": {"type": "integer"}
            }
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
                "status": {"type": "integer"}
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
