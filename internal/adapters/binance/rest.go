package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-trade-engine/pkg/logger"
)

const (
	mainnetRESTURL = "https://fapi.binance.com"
	testnetRESTURL = "https://testnet.binancefuture.com"
)

// restClient 币安 U 本位合约 REST 客户端
// 只承担下单、撤单、快照查询和 listenKey 维护，推送走 ws
type restClient struct {
	client *resty.Client
	key    string
	secret string
}

func newRESTClient(key, secret string, sandbox bool) *restClient {
	baseURL := mainnetRESTURL
	if sandbox {
		baseURL = testnetRESTURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流优先尊重 Retry-After
			if resp.StatusCode() == 429 {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := strconv.Atoi(retryAfter); err == nil {
						return time.Duration(seconds) * time.Second, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		}).
		SetHeader("X-MBX-APIKEY", key)

	return &restClient{client: client, key: key, secret: secret}
}

// sign 按 HMAC-SHA256 对请求参数签名
func (c *restClient) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, params[k])
	}
	query := values.Encode()

	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// signedParams 注入时间戳并签名
func (c *restClient) signedParams(params map[string]string) map[string]string {
	if params == nil {
		params = make(map[string]string)
	}
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	params["recvWindow"] = "5000"
	params["signature"] = c.sign(params)
	return params
}

// do 执行请求并统一解析错误体
func (c *restClient) do(method, endpoint string, params map[string]string) (gjson.Result, error) {
	req := c.client.R()
	if params != nil {
		req.SetQueryParams(params)
	}

	var resp *resty.Response
	var err error
	switch method {
	case "GET":
		resp, err = req.Get(endpoint)
	case "POST":
		resp, err = req.Post(endpoint)
	case "PUT":
		resp, err = req.Put(endpoint)
	case "DELETE":
		resp, err = req.Delete(endpoint)
	default:
		return gjson.Result{}, fmt.Errorf("unsupported method: %s", method)
	}
	if err != nil {
		return gjson.Result{}, err
	}

	body := gjson.ParseBytes(resp.Body())
	if !resp.IsSuccess() {
		code := body.Get("code").Int()
		msg := body.Get("msg").String()
		logger.Warn().
			Int("status", resp.StatusCode()).
			Int64("code", code).
			Str("msg", msg).
			Str("endpoint", endpoint).
			Msg("rest request rejected")
		return body, fmt.Errorf("rest %s %s: code=%d msg=%s", method, endpoint, code, msg)
	}

	return body, nil
}

// Ping 连通性探测
func (c *restClient) Ping() error {
	_, err := c.do("GET", "/fapi/v1/ping", nil)
	return err
}

// NewOrder 下单，返回交易所订单号
func (c *restClient) NewOrder(symbol, side, orderType, clientOrderID string, price, quantity float64) (string, error) {
	params := map[string]string{
		"symbol":           symbol,
		"side":             side,
		"type":             orderType,
		"quantity":         strconv.FormatFloat(quantity, 'f', -1, 64),
		"newClientOrderId": clientOrderID,
	}
	if orderType == "LIMIT" {
		params["price"] = strconv.FormatFloat(price, 'f', -1, 64)
		params["timeInForce"] = "GTC"
	}

	body, err := c.do("POST", "/fapi/v1/order", c.signedParams(params))
	if err != nil {
		return "", err
	}
	return body.Get("orderId").String(), nil
}

// CancelOrder 按客户端订单号撤单
func (c *restClient) CancelOrder(symbol, clientOrderID string) error {
	params := map[string]string{
		"symbol":            symbol,
		"origClientOrderId": clientOrderID,
	}
	_, err := c.do("DELETE", "/fapi/v1/order", c.signedParams(params))
	return err
}

// Account 账户快照（余额 + 持仓）
func (c *restClient) Account() (gjson.Result, error) {
	return c.do("GET", "/fapi/v2/account", c.signedParams(nil))
}

// OpenOrders 活动订单快照，轮询降级时对账用
func (c *restClient) OpenOrders() (gjson.Result, error) {
	return c.do("GET", "/fapi/v1/openOrders", c.signedParams(nil))
}

// Klines 历史 K 线
func (c *restClient) Klines(symbol, interval string, start, end time.Time, limit int) (gjson.Result, error) {
	params := map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}
	if !start.IsZero() {
		params["startTime"] = strconv.FormatInt(start.UnixMilli(), 10)
	}
	if !end.IsZero() {
		params["endTime"] = strconv.FormatInt(end.UnixMilli(), 10)
	}
	return c.do("GET", "/fapi/v1/klines", params)
}

// BookTicker 最优买卖价快照，轮询降级时替代行情推送
func (c *restClient) BookTicker(symbol string) (gjson.Result, error) {
	return c.do("GET", "/fapi/v1/ticker/bookTicker", map[string]string{"symbol": symbol})
}

// ExchangeInfo 合约参考数据
func (c *restClient) ExchangeInfo() (gjson.Result, error) {
	return c.do("GET", "/fapi/v1/exchangeInfo", nil)
}

// CreateListenKey 申请用户数据流密钥
func (c *restClient) CreateListenKey() (string, error) {
	body, err := c.do("POST", "/fapi/v1/listenKey", nil)
	if err != nil {
		return "", err
	}
	return body.Get("listenKey").String(), nil
}

// KeepAliveListenKey 续期用户数据流密钥
func (c *restClient) KeepAliveListenKey() error {
	_, err := c.do("PUT", "/fapi/v1/listenKey", nil)
	return err
}
