package util

import (
	libconstants "github.com/filswan/go-swan-lib/constants"
)

type BasicResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func CreateSuccessResponse(_data interface{}) BasicResponse {
	return BasicResponse{
		Status: libconstants.SWAN_API_STATUS_SUCCESS,
		Data:   _data,
		Code:   SuccessCode,
	}
}

func CreateErrorResponse(code int, errMsg ...string) BasicResponse {
	var msg string
	if len(errMsg) == 0 {
		msg = codeMsg[code]
	} else {
		msg = errMsg[0]
	}
	return BasicResponse{
		Status:  libconstants.SWAN_API_STATUS_FAIL,
		Code:    code,
		Message: msg,
	}
}

func (r BasicResponse) Succeeded() bool {
	return r.Status == libconstants.SWAN_API_STATUS_SUCCESS
}

// Codes 101-105 are ledger rejections and are passed through unchanged.
const (
	SuccessCode    = 200
	JsonError      = 400
	SignatureError = 401
	ServerError    = 500
)

var codeMsg = map[int]string{
	JsonError:      "An error occurred while converting to json",
	SignatureError: "The request signature is missing or invalid",
	ServerError:    "An internal error occurred while processing the request",
}
