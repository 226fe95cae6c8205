// Package docs registers the OpenAPI description served at /swagger.
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
        "/denominations": {
            "get": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "raffle"
                ],
                "summary": "Номиналы и состояние пулов",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/denominations/{value}/tickets": {
            "get": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "raffle"
                ],
                "summary": "Свободные билеты номинала",
                "parameters": [
                    {
                        "type": "integer",
                        "name": "value",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/payment-instructions": {
            "get": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "raffle"
                ],
                "summary": "Реквизиты для оплаты",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/draws": {
            "get": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "raffle"
                ],
                "summary": "Последние розыгрыши",
                "parameters": [
                    {
                        "type": "integer",
                        "name": "denomination",
                        "in": "query",
                        "required": false
                    },
                    {
                        "type": "integer",
                        "name": "limit",
                        "in": "query",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/draws/archive": {
            "get": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "raffle"
                ],
                "summary": "Архив розыгрышей",
                "parameters": [
                    {
                        "type": "integer",
                        "name": "denomination",
                        "in": "query",
                        "required": false
                    },
                    {
                        "type": "integer",
                        "name": "limit",
                        "in": "query",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/me": {
            "post": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "me"
                ],
                "summary": "Регистрация пользователя",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            },
            "get": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "me"
                ],
                "summary": "Мой аккаунт",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/me/tickets": {
            "get": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "me"
                ],
                "summary": "Мои билеты",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/me/referral/claim": {
            "post": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "me"
                ],
                "summary": "Получить реферальный бонус",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/purchases": {
            "post": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "purchases"
                ],
                "summary": "Отправить подтверждение оплаты",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/admin/payments": {
            "get": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "admin"
                ],
                "summary": "Ожидающие проверки платежи",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/admin/payments/{id}/verify": {
            "post": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "admin"
                ],
                "summary": "Подтвердить платёж",
                "parameters": [
                    {
                        "type": "string",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/admin/payments/{id}/reject": {
            "post": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "admin"
                ],
                "summary": "Отклонить платёж",
                "parameters": [
                    {
                        "type": "string",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/admin/verify": {
            "post": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "admin"
                ],
                "summary": "Подтвердить платёж по билету",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/admin/draws/{denomination}": {
            "post": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "admin"
                ],
                "summary": "Принудительный розыгрыш",
                "parameters": [
                    {
                        "type": "integer",
                        "name": "denomination",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        },
        "/admin/rounds/init": {
            "post": {
                "security": [
                    {
                        "TelegramInitData": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "admin"
                ],
                "summary": "Инициализировать раунды",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    },
                    "401": {
                        "description": "Unauthorized"
                    }
                }
            }
        }
    },
    "securityDefinitions": {
        "TelegramInitData": {
            "description": "Telegram Mini App init_data string for authentication",
            "type": "apiKey",
            "name": "init_data",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Raffle API",
	Description:      "Ticket raffle backend for a Telegram Mini App. All endpoints require init_data authentication.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
