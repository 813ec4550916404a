package control

import (
	"encoding/json"
	"fmt"
	"net/http"

	"finfeed/domain"
)

type Client struct{ addr string }

func NewClient(addr string) *Client { return &Client{addr: addr} }

func (c *Client) Trigger() (domain.BatchResult, error) {
	resp, err := http.Post("http://"+c.addr+"/trigger", "application/json", nil)
	if err != nil {
		return domain.BatchResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return domain.BatchResult{}, domain.ErrAlreadyRunning
	}
	if resp.StatusCode >= 300 {
		return domain.BatchResult{}, fmt.Errorf("server error: %s", resp.Status)
	}
	var r domain.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.BatchResult{}, err
	}
	return r, nil
}

func (c *Client) Status() (domain.SchedulerStatus, error) {
	resp, err := http.Get("http://" + c.addr + "/status")
	if err != nil {
		return domain.SchedulerStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.SchedulerStatus{}, fmt.Errorf("server error: %s", resp.Status)
	}
	var r domain.SchedulerStatus
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.SchedulerStatus{}, err
	}
	return r, nil
}

func (c *Client) Statistics(timeframe string) (domain.Statistics, error) {
	resp, err := http.Get("http://" + c.addr + "/stats?timeframe=" + timeframe)
	if err != nil {
		return domain.Statistics{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.Statistics{}, fmt.Errorf("server error: %s", resp.Status)
	}
	var r domain.Statistics
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.Statistics{}, err
	}
	return r, nil
}
