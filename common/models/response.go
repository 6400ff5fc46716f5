package models

// BaseResponse is the generic success envelope for API responses.
type BaseResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the generic error envelope for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"msg"`
}
