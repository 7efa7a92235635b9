package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Technician Dispatch API",
    "description": "Booking dispatch to the nearest free technician and per-window reassignment optimization",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "StaffKey": {"type": "apiKey", "in": "header", "name": "X-Staff-Key"}
  },
  "paths": {
    "/api/available-slots": {
      "get": {
        "tags": ["booking"],
        "summary": "Available slots",
        "parameters": [
          {"name": "city", "in": "query", "required": true, "type": "string"},
          {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"}
        ],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}}
      }
    },
    "/api/book": {
      "post": {
        "tags": ["booking"],
        "summary": "Book a technician",
        "consumes": ["application/json"],
        "parameters": [{"name": "booking", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BookingRequest"}}],
        "responses": {
          "201": {"description": "Created"},
          "400": {"description": "INVALID_FIELD, BAD_DATE, BAD_TIME_WINDOW or POSTAL_NOT_FOUND"},
          "404": {"description": "NO_TECHNICIAN_AVAILABLE"},
          "409": {"description": "SLOT_CONFLICT"},
          "503": {"description": "LOCK_TIMEOUT"}
        }
      }
    },
    "/api/technicians": {
      "get": {
        "tags": ["booking"],
        "summary": "List technicians",
        "parameters": [{"name": "city", "in": "query", "type": "string"}],
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/api/ops/schedule": {
      "get": {
        "tags": ["ops"], "summary": "Ops schedule", "security": [{"StaffKey": []}],
        "parameters": [
          {"name": "city", "in": "query", "type": "string"},
          {"name": "date", "in": "query", "type": "string", "format": "date"}
        ],
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/api/ops/preview": {
      "post": {
        "tags": ["ops"], "summary": "Preview optimization", "security": [{"StaffKey": []}],
        "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CityDateRequest"}}],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}}
      }
    },
    "/api/ops/apply": {
      "post": {
        "tags": ["ops"], "summary": "Apply optimization", "security": [{"StaffKey": []}],
        "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CityDateRequest"}}],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}, "503": {"description": "LOCK_TIMEOUT"}}
      }
    },
    "/api/ops/runs": {
      "get": {
        "tags": ["ops"], "summary": "List runs", "security": [{"StaffKey": []}],
        "parameters": [
          {"name": "city", "in": "query", "type": "string"},
          {"name": "date", "in": "query", "type": "string", "format": "date"},
          {"name": "limit", "in": "query", "type": "integer"}
        ],
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/api/ops/runs/{id}": {
      "get": {
        "tags": ["ops"], "summary": "Run details", "security": [{"StaffKey": []}],
        "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
        "responses": {"200": {"description": "OK"}, "404": {"description": "NOT_FOUND"}}
      }
    },
    "/api/ops/slots/generate": {
      "post": {
        "tags": ["ops"], "summary": "Generate slots", "security": [{"StaffKey": []}],
        "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateRequest"}}],
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/api/ops/import": {
      "post": {
        "tags": ["ops"], "summary": "Import technicians", "security": [{"StaffKey": []}],
        "consumes": ["multipart/form-data"],
        "parameters": [{"name": "technicians", "in": "formData", "required": true, "type": "file"}],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}}
      }
    }
  },
  "definitions": {
    "BookingRequest": {
      "type": "object",
      "required": ["name", "phone", "city", "address", "pincode", "date", "slot"],
      "properties": {
        "name": {"type": "string"},
        "phone": {"type": "string"},
        "city": {"type": "string"},
        "address": {"type": "string"},
        "pincode": {"type": "string"},
        "date": {"type": "string", "format": "date"},
        "slot": {"type": "string", "enum": ["09_11", "11_13", "13_15", "15_17", "17_19"]}
      }
    },
    "CityDateRequest": {
      "type": "object",
      "required": ["city", "date"],
      "properties": {"city": {"type": "string"}, "date": {"type": "string", "format": "date"}}
    },
    "GenerateRequest": {
      "type": "object",
      "required": ["date"],
      "properties": {"date": {"type": "string", "format": "date"}}
    }
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
