// Package docs holds the Swagger specification served at /swagger/*.
// Regenerate with `swag init -g cmd/server/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/wallet": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Wallet"],
                "summary": "Get wallet",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Account"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/wallet/transactions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Wallet"],
                "summary": "List wallet transactions",
                "parameters": [
                    {"type": "string", "description": "Entry kind", "name": "type", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Page offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TransactionList"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/wallet/deposits": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Wallet"],
                "summary": "Credit a deposit",
                "parameters": [
                    {"description": "Confirmed deposit", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.DepositRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/services.DepositResult"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.DepositResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/albums/{albumId}/purchase": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Albums"],
                "summary": "Purchase album",
                "parameters": [
                    {"type": "string", "description": "Album ID", "name": "albumId", "in": "path", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.PurchaseResult"}},
                    "402": {"description": "Payment Required", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/albums/{albumId}/access": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Albums"],
                "summary": "Check album access",
                "parameters": [
                    {"type": "string", "description": "Album ID", "name": "albumId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AccessResponse"}}
                }
            }
        },
        "/purchases/{purchaseId}/refund": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Albums"],
                "summary": "Refund purchase",
                "parameters": [
                    {"type": "string", "description": "Purchase ID", "name": "purchaseId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.RefundResult"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/bookings/{bookingId}/settle": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Bookings"],
                "summary": "Settle a booking",
                "parameters": [
                    {"type": "string", "description": "Booking ID", "name": "bookingId", "in": "path", "required": true},
                    {"description": "Booking settlement", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.BookingSettlementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.BookingResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "402": {"description": "Payment Required", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payouts": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payouts"],
                "summary": "Request payout",
                "parameters": [
                    {"description": "Payout amount", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PayoutRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.PayoutResult"}},
                    "402": {"description": "Payment Required", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/payouts/run": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Payouts"],
                "summary": "Run payout cycle",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.CycleReport"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "models.Account": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "userId": {"type": "string"},
                "balance": {"type": "string", "example": "1500.00"},
                "pendingBalance": {"type": "string"},
                "totalDeposited": {"type": "string"},
                "totalSpent": {"type": "string"},
                "totalEarned": {"type": "string"},
                "currency": {"type": "string", "example": "USD"},
                "isActive": {"type": "boolean"}
            }
        },
        "models.LedgerEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "batchId": {"type": "string"},
                "userId": {"type": "string"},
                "kind": {"type": "string", "enum": ["deposit", "purchase", "withdrawal", "refund", "commission", "earning"]},
                "bucket": {"type": "string", "enum": ["available", "pending"]},
                "amount": {"type": "string", "example": "-500.00"},
                "balanceBefore": {"type": "string"},
                "balanceAfter": {"type": "string"},
                "currency": {"type": "string"},
                "status": {"type": "string"},
                "relatedEntityType": {"type": "string"},
                "relatedEntityId": {"type": "string"},
                "externalProvider": {"type": "string"},
                "externalReference": {"type": "string"},
                "idempotencyKey": {"type": "string"},
                "description": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": {"type": "string"}},
                "createdAt": {"type": "string"}
            }
        },
        "models.Purchase": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "buyerId": {"type": "string"},
                "sellerId": {"type": "string"},
                "itemId": {"type": "string"},
                "pricePaid": {"type": "string"},
                "platformCommission": {"type": "string"},
                "sellerEarnings": {"type": "string"},
                "commissionRate": {"type": "string"},
                "accessExpiresAt": {"type": "string"},
                "isActive": {"type": "boolean"}
            }
        },
        "handlers.TransactionList": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/models.LedgerEntry"}},
                "total": {"type": "integer"}
            }
        },
        "handlers.DepositRequest": {
            "type": "object",
            "required": ["userId", "amount", "provider", "reference"],
            "properties": {
                "userId": {"type": "string"},
                "amount": {"type": "string", "example": "1000.00"},
                "provider": {"type": "string", "example": "stripe"},
                "reference": {"type": "string"}
            }
        },
        "handlers.BookingSettlementRequest": {
            "type": "object",
            "required": ["clientId", "workerId", "amount"],
            "properties": {
                "clientId": {"type": "string"},
                "workerId": {"type": "string"},
                "amount": {"type": "string", "example": "120.00"}
            }
        },
        "handlers.PayoutRequest": {
            "type": "object",
            "required": ["amount"],
            "properties": {
                "amount": {"type": "string", "example": "600.00"}
            }
        },
        "handlers.AccessResponse": {
            "type": "object",
            "properties": {
                "albumId": {"type": "string"},
                "hasAccess": {"type": "boolean"}
            }
        },
        "services.DepositResult": {
            "type": "object",
            "properties": {
                "entry": {"$ref": "#/definitions/models.LedgerEntry"},
                "newBalance": {"type": "string"},
                "replayed": {"type": "boolean"}
            }
        },
        "services.PurchaseResult": {
            "type": "object",
            "properties": {
                "purchase": {"$ref": "#/definitions/models.Purchase"},
                "newBalance": {"type": "string"}
            }
        },
        "services.RefundResult": {
            "type": "object",
            "properties": {
                "purchase": {"$ref": "#/definitions/models.Purchase"},
                "entries": {"type": "array", "items": {"$ref": "#/definitions/models.LedgerEntry"}}
            }
        },
        "services.BookingResult": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/models.LedgerEntry"}},
                "commission": {"type": "string"},
                "earnings": {"type": "string"},
                "replayed": {"type": "boolean"}
            }
        },
        "services.PayoutResult": {
            "type": "object",
            "properties": {
                "userId": {"type": "string"},
                "amount": {"type": "string"},
                "status": {"type": "string"},
                "railReference": {"type": "string"},
                "entryId": {"type": "string"},
                "alreadySettled": {"type": "boolean"}
            }
        },
        "services.PayoutFailure": {
            "type": "object",
            "properties": {
                "userId": {"type": "string"},
                "amount": {"type": "string"},
                "error": {"type": "string"},
                "retryable": {"type": "boolean"}
            }
        },
        "services.CycleReport": {
            "type": "object",
            "properties": {
                "cycleDate": {"type": "string"},
                "paidAccounts": {"type": "array", "items": {"$ref": "#/definitions/services.PayoutResult"}},
                "failures": {"type": "array", "items": {"$ref": "#/definitions/services.PayoutFailure"}},
                "lockHeld": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Atelier Wallet API",
	Description:      "Wallet ledger, album purchases, booking settlement and payouts",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
