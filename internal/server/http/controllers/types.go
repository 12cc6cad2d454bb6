package controllers

// Common request/response types for HTTP controllers

// createOrderReq is the body of POST /v1/orders.
type createOrderReq struct {
	TenantID     string  `json:"tenantId"`
	OrderNumber  string  `json:"orderNumber,omitempty"`
	CustomerName string  `json:"customerName,omitempty"`
	TotalAmount  float64 `json:"totalAmount"`
	OrderType    string  `json:"orderType,omitempty"`
	Status       string  `json:"status,omitempty"`
}

// unsubscribeReq is the body of POST /v1/push/unsubscribe.
type unsubscribeReq struct {
	Endpoint string `json:"endpoint"`
}

// dispatchReq is the body of POST /v1/push/dispatch.
type dispatchReq struct {
	TenantID  string `json:"tenantId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"targetUrl,omitempty"`
}

// subscribeResp is returned by POST /v1/push/subscribe.
type subscribeResp struct {
	ID string `json:"id"`
}

// sessionsResp is returned by GET /v1/orders/sessions.
type sessionsResp struct {
	Total    int            `json:"total"`
	ByTenant map[string]int `json:"byTenant"`
}
