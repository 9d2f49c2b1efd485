// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

// Package transport carries the extension manager RPC surface over a
// local endpoint: HTTP/1.1 request/response with JSON bodies, one
// operation per route. Servers bind a unix socket or named pipe via the
// endpoint package; clients are one-shot.
package transport

import (
	"fmt"

	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/registry"
)

// CodeSuccess is the status code of a successful operation. Any non-zero
// code is an error whose message is carried verbatim.
const CodeSuccess = 0

// Status is the result envelope of operations returning only status.
type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	UUID    uint64 `json:"uuid,omitempty"`
}

// OK reports whether the status is a success.
func (s Status) OK() bool {
	return s.Code == CodeSuccess
}

// Success returns the canonical success status.
func Success() Status {
	return Status{Code: CodeSuccess, Message: "OK"}
}

// Failure returns an error status carrying code and message verbatim.
func Failure(code int, message string) Status {
	return Status{Code: code, Message: message}
}

// Failuref returns a generic error status with a formatted message.
func Failuref(format string, args ...any) Status {
	return Status{Code: 1, Message: fmt.Sprintf(format, args...)}
}

// ExtensionInfo is the identity an extension presents at registration.
type ExtensionInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	SDKVersion    string `json:"sdk_version"`
	MinSDKVersion string `json:"min_sdk_version"`
}

// Response is the result envelope of operations returning tabular data.
// Rows are empty when the status is not a success.
type Response struct {
	Status Status              `json:"status"`
	Rows   []map[string]string `json:"response,omitempty"`
}

// OptionList is the manager's exported flag table.
type OptionList map[string]config.Option

// ExtensionList maps route UUIDs to extension identities.
type ExtensionList map[uint64]ExtensionInfo

// RegisterRequest is the body of the registerExtension operation.
type RegisterRequest struct {
	Info      ExtensionInfo      `json:"info"`
	Broadcast registry.Broadcast `json:"broadcast"`
}

// QueryRequest is the body of the query and getQueryColumns operations.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// CallRequest is the body of the call operation.
type CallRequest struct {
	Registry string            `json:"registry"`
	Item     string            `json:"item"`
	Request  map[string]string `json:"request"`
}

// Handler serves the operations every endpoint answers.
type Handler interface {
	Ping() Status
	Call(registryName, item string, request map[string]string) Response
	Shutdown()
}

// ManagerHandler additionally serves the manager-only operations.
type ManagerHandler interface {
	Handler
	RegisterExtension(info ExtensionInfo, broadcast registry.Broadcast) Status
	Extensions() ExtensionList
	Options() OptionList
	Query(sql string) Response
	GetQueryColumns(sql string) Response
}
