package settlement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fenrir/domain/asset"
	"fenrir/domain/order"
)

// NodeClient talks to a settlement node's REST API. Read endpoints
// are point-in-time; submission returns the node's acceptance
// verdict for its pending pool.
type NodeClient struct {
	base string
	http *http.Client
}

func NewNodeClient(baseURL string) *NodeClient {
	return &NodeClient{
		base: baseURL,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *NodeClient) SubmitExchangeTransaction(tx *ExchangeTransaction) bool {
	body, err := json.Marshal(tx)
	if err != nil {
		return false
	}
	resp, err := c.http.Post(c.base+"/transactions/exchange", "application/json", bytes.NewReader(body))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *NodeClient) BalanceOf(addr order.Address, a asset.Asset) int64 {
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.getJSON(fmt.Sprintf("/addresses/%s/balance/%s", addr, a), &out); err != nil {
		return 0
	}
	return out.Balance
}

func (c *NodeClient) TotalSupply(a asset.Asset) int64 {
	var out struct {
		Supply int64 `json:"supply"`
	}
	if err := c.getJSON("/assets/"+a.String()+"/supply", &out); err != nil {
		return 0
	}
	return out.Supply
}

func (c *NodeClient) AssetInfo(a asset.Asset) (AssetInfo, bool) {
	var out AssetInfo
	if err := c.getJSON("/assets/"+a.String(), &out); err != nil {
		return AssetInfo{}, false
	}
	return out, true
}

func (c *NodeClient) getJSON(path string, into any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("settlement node: %s -> %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}
