// Package docs holds the OpenAPI document served under /swagger.
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
        "/api/pizzas": {
            "get": {
                "tags": [
                    "catalog"
                ],
                "summary": "List the base pizzas",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/main.PizzaResponse"
                            }
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/pizzas/{id}": {
            "get": {
                "tags": [
                    "catalog"
                ],
                "summary": "Get a base pizza",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Pizza ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/main.PizzaResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/toppings": {
            "get": {
                "tags": [
                    "catalog"
                ],
                "summary": "List the toppings",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/main.ToppingResponse"
                            }
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/toppings/calculate-price": {
            "post": {
                "tags": [
                    "catalog"
                ],
                "summary": "Quote the price of a pizza before ordering",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Selected toppings",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/main.CalculatePriceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/main.CalculatePriceResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/orders": {
            "post": {
                "tags": [
                    "order"
                ],
                "summary": "Place a new order",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "New order",
                        "name": "order",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/main.CreateOrderRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/main.OrderResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            },
            "get": {
                "tags": [
                    "order"
                ],
                "summary": "List orders",
                "produces": [
                    "application/json"
                ],
                "description": "Unknown sortBy values fall back to createdAt, unknown sortOrder values to desc.",
                "parameters": [
                    {
                        "enum": [
                            "all",
                            "pending",
                            "confirmed"
                        ],
                        "type": "string",
                        "description": "Filter by status",
                        "name": "status",
                        "in": "query"
                    },
                    {
                        "enum": [
                            "id",
                            "createdAt",
                            "totalPrice",
                            "status"
                        ],
                        "type": "string",
                        "description": "Sort field",
                        "name": "sortBy",
                        "in": "query"
                    },
                    {
                        "enum": [
                            "asc",
                            "desc"
                        ],
                        "type": "string",
                        "description": "Sort direction",
                        "name": "sortOrder",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/main.OrderResponse"
                            }
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/orders/{id}": {
            "get": {
                "tags": [
                    "order"
                ],
                "summary": "Get an order",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Order ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/main.OrderResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/orders/{id}/confirm": {
            "post": {
                "tags": [
                    "order"
                ],
                "summary": "Confirm a pending order",
                "produces": [
                    "application/json"
                ],
                "description": "Confirming twice is rejected with 400.",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Order ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/main.ConfirmOrderResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/admin/orders/stats": {
            "get": {
                "tags": [
                    "admin"
                ],
                "summary": "Dashboard counters",
                "produces": [
                    "application/json"
                ],
                "security": [
                    {
                        "BasicAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/main.StatsResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/main.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/admin/orders/live": {
            "get": {
                "tags": [
                    "admin"
                ],
                "summary": "Stream order events via Server-Sent Events (SSE)",
                "produces": [
                    "text/event-stream"
                ],
                "security": [
                    {
                        "BasicAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/main.OrderEvent"
                        }
                    }
                }
            }
        },
        "/api/admin/orders/ws": {
            "get": {
                "tags": [
                    "admin"
                ],
                "summary": "Stream order events over a WebSocket",
                "produces": [
                    "application/json"
                ],
                "security": [
                    {
                        "BasicAuth": []
                    }
                ],
                "responses": {
                    "101": {
                        "description": "Switching Protocols",
                        "schema": {
                            "$ref": "#/definitions/main.OrderEvent"
                        }
                    }
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": [
                    "health"
                ],
                "summary": "Check the health of the service",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/healthgo.Check"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/healthgo.Check"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "main.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string",
                    "example": "address required"
                }
            }
        },
        "main.ToppingResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "integer",
                    "example": 1
                },
                "name": {
                    "type": "string",
                    "example": "Cheese"
                },
                "price": {
                    "type": "string",
                    "example": "1.50"
                }
            }
        },
        "main.PizzaResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "integer",
                    "example": 1
                },
                "name": {
                    "type": "string",
                    "example": "Margherita"
                },
                "description": {
                    "type": "string"
                },
                "basePrice": {
                    "type": "string",
                    "example": "8.00"
                },
                "baseToppings": {
                    "type": "array",
                    "items": {
                        "type": "integer"
                    }
                }
            }
        },
        "main.OrderResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "integer",
                    "example": 42
                },
                "basePizzaId": {
                    "type": "integer",
                    "example": 1
                },
                "toppings": {
                    "type": "array",
                    "items": {
                        "type": "integer"
                    }
                },
                "address": {
                    "type": "string",
                    "example": "Via Roma 1"
                },
                "pizzaPrice": {
                    "type": "string",
                    "example": "10.00"
                },
                "deliveryFee": {
                    "type": "string",
                    "example": "5.00"
                },
                "totalPrice": {
                    "type": "string",
                    "example": "15.00"
                },
                "status": {
                    "type": "string",
                    "example": "pending"
                },
                "createdAt": {
                    "type": "string"
                },
                "updatedAt": {
                    "type": "string"
                }
            }
        },
        "main.ConfirmOrderResponse": {
            "type": "object",
            "properties": {
                "message": {
                    "type": "string",
                    "example": "Order confirmed successfully!"
                },
                "order": {
                    "$ref": "#/definitions/main.OrderResponse"
                }
            }
        },
        "main.CreateOrderRequest": {
            "type": "object",
            "properties": {
                "toppingIds": {
                    "type": "array",
                    "items": {
                        "type": "integer"
                    }
                },
                "address": {
                    "type": "string",
                    "example": "Via Roma 1"
                },
                "basePizzaId": {
                    "type": "integer",
                    "example": 1
                }
            }
        },
        "main.CalculatePriceRequest": {
            "type": "object",
            "properties": {
                "toppingIds": {
                    "type": "array",
                    "items": {
                        "type": "integer"
                    }
                },
                "basePizzaId": {
                    "type": "integer",
                    "example": 1
                }
            }
        },
        "main.CalculatePriceResponse": {
            "type": "object",
            "properties": {
                "basePrice": {
                    "type": "string",
                    "example": "8.00"
                },
                "toppingsPrice": {
                    "type": "string",
                    "example": "2.00"
                },
                "totalPrice": {
                    "type": "string",
                    "example": "10.00"
                }
            }
        },
        "main.StatsResponse": {
            "type": "object",
            "properties": {
                "total": {
                    "type": "integer",
                    "example": 12
                },
                "pending": {
                    "type": "integer",
                    "example": 4
                },
                "confirmed": {
                    "type": "integer",
                    "example": 8
                },
                "revenue": {
                    "type": "string",
                    "example": "118.50"
                }
            }
        },
        "main.OrderEvent": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "type": {
                    "type": "string",
                    "example": "order.created"
                },
                "occurredAt": {
                    "type": "string"
                },
                "order": {
                    "$ref": "#/definitions/main.OrderResponse"
                }
            }
        },
        "healthgo.Check": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "timestamp": {
                    "type": "string"
                },
                "failures": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "string"
                    }
                },
                "system": {
                    "type": "object"
                },
                "component": {
                    "type": "object"
                }
            }
        }
    },
    "securityDefinitions": {
        "BasicAuth": {
            "type": "basic"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Cassa",
	Description:      "Pizza ordering: catalog, pricing and the order lifecycle.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
