package grpcserver

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client 面试服务的轻量客户端，按 JSON 字段收发
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient 创建客户端
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call 调用一个方法；req 与 resp 按 JSON 标签与 Struct 互转
func (c *Client) Call(ctx context.Context, method string, req, resp interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	in := &structpb.Struct{}
	if err := protojson.Unmarshal(data, in); err != nil {
		return err
	}
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	data, err = protojson.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, resp)
}
