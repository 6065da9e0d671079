// Command kuroko-cache-dynamodb is the remote chunk-cache plugin: a
// child process speaking line-delimited JSON-RPC on stdin/stdout,
// backing internal/plugin.Client with DynamoDB get_item/put_item calls.
// The protocol is generic key/value glue, same shape the teacher used
// for its own DynamoDB plugin; internal/plugin is what specializes it
// into a chunk cache.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
)

// request/response must match internal/plugin/plugin.go exactly.
type request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

var (
	clients     = make(map[string]*dynamodb.Client)
	clientsLock sync.Mutex
)

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			encoder.Encode(response{Error: fmt.Sprintf("parse error: %v", err)})
			continue
		}

		result, err := handle(req)
		resp := response{Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		if err := encoder.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "kuroko-cache-dynamodb: failed to encode response: %v\n", err)
		}
	}
}

func handle(req request) (interface{}, error) {
	switch req.Method {
	case "connect":
		return handleConnect(req.Params)
	case "put_item":
		return handlePutItem(req.Params)
	case "get_item":
		return handleGetItem(req.Params)
	default:
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}
}

func handleConnect(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("expected options map")
	}
	options, ok := params[0].(map[string]interface{})
	if !ok {
		options = make(map[string]interface{})
	}

	region := "us-east-1"
	if r, ok := options["region"].(string); ok && r != "" {
		region = r
	}

	configOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	accessKey, _ := options["access_key"].(string)
	secretKey, _ := options["secret_key"].(string)
	if accessKey != "" && secretKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg)
	clientID := uuid.NewString()

	clientsLock.Lock()
	clients[clientID] = client
	clientsLock.Unlock()

	return clientID, nil
}

func handlePutItem(params []interface{}) (interface{}, error) {
	if len(params) < 3 {
		return nil, fmt.Errorf("expected client_id, table, item")
	}
	clientID, _ := params[0].(string)
	tableName, _ := params[1].(string)
	itemMap, ok := params[2].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("item must be a map")
	}

	client := getClient(clientID)
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}

	av, err := attributevalue.MarshalMap(itemMap)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	_, err = client.PutItem(context.TODO(), &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	})
	if err != nil {
		return nil, err
	}
	return true, nil
}

func handleGetItem(params []interface{}) (interface{}, error) {
	if len(params) < 3 {
		return nil, fmt.Errorf("expected client_id, table, key")
	}
	clientID, _ := params[0].(string)
	tableName, _ := params[1].(string)
	keyMap, ok := params[2].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("key must be a map")
	}

	client := getClient(clientID)
	if client == nil {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}

	avKey, err := attributevalue.MarshalMap(keyMap)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	out, err := client.GetItem(context.TODO(), &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key:       avKey,
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	var resMap map[string]interface{}
	if err := attributevalue.UnmarshalMap(out.Item, &resMap); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return resMap, nil
}

func getClient(id string) *dynamodb.Client {
	clientsLock.Lock()
	defer clientsLock.Unlock()
	return clients[id]
}
