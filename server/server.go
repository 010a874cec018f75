// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package server exposes the item engine and the streams service over the
// DynamoDB JSON wire protocol: every call is a POST to / with the operation
// named in the X-Amz-Target header.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/private/protocol/json/jsonutil"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams"
	"github.com/gorilla/mux"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/pretender/itembase"
	"storj.io/pretender/streams"
)

// Error is the default error class for the server.
var Error = errs.Class("server")

const (
	itemTargetPrefix    = "DynamoDB_20120810."
	streamsTargetPrefix = "DynamoDBStreams_20120810."
)

// Config contains configurable values for the API server.
type Config struct {
	Address string `help:"address to listen on" default:":8000"`
}

// Server implements the wire protocol endpoint.
type Server struct {
	log      *zap.Logger
	db       *itembase.DB
	streams  *streams.Service
	address  string
	handler  http.Handler
	listener *http.Server
}

// NewServer creates a new API server.
func NewServer(log *zap.Logger, db *itembase.DB, streamsService *streams.Service, config Config) *Server {
	server := &Server{
		log:     log,
		db:      db,
		streams: streamsService,
		address: config.Address,
	}

	router := mux.NewRouter()
	router.HandleFunc("/", server.handleCall).Methods(http.MethodPost)
	server.handler = router

	return server
}

// Handler returns the HTTP handler, used directly by tests.
func (server *Server) Handler() http.Handler { return server.handler }

// Run starts the server and blocks until ctx is cancelled.
func (server *Server) Run(ctx context.Context) error {
	server.listener = &http.Server{
		Addr:    server.address,
		Handler: server.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.listener.ListenAndServe()
	}()

	server.log.Info("server started", zap.String("address", server.address))

	select {
	case <-ctx.Done():
		return Error.Wrap(server.listener.Shutdown(context.Background()))
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return Error.Wrap(err)
	}
}

func (server *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := r.Header.Get("X-Amz-Target")

	out, err := server.dispatch(ctx, target, r)
	if err != nil {
		server.writeError(w, target, err)
		return
	}
	server.writeResponse(w, out)
}

func (server *Server) dispatch(ctx context.Context, target string, r *http.Request) (interface{}, error) {
	switch {
	case strings.HasPrefix(target, itemTargetPrefix):
		return server.dispatchItem(ctx, strings.TrimPrefix(target, itemTargetPrefix), r)
	case strings.HasPrefix(target, streamsTargetPrefix):
		return server.dispatchStreams(ctx, strings.TrimPrefix(target, streamsTargetPrefix), r)
	default:
		return nil, ErrBadRequest.New("unknown target %q", target)
	}
}

func (server *Server) dispatchItem(ctx context.Context, operation string, r *http.Request) (interface{}, error) {
	switch operation {
	case "CreateTable":
		req := &dynamodb.CreateTableInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.CreateTable(ctx, req)
	case "DeleteTable":
		req := &dynamodb.DeleteTableInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.DeleteTable(ctx, req)
	case "DescribeTable":
		req := &dynamodb.DescribeTableInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.DescribeTable(ctx, req)
	case "ListTables":
		req := &dynamodb.ListTablesInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.ListTables(ctx, req)
	case "UpdateTable":
		req := &dynamodb.UpdateTableInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.UpdateTable(ctx, req)
	case "UpdateTimeToLive":
		req := &dynamodb.UpdateTimeToLiveInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.UpdateTimeToLive(ctx, req)
	case "DescribeTimeToLive":
		req := &dynamodb.DescribeTimeToLiveInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.DescribeTimeToLive(ctx, req)
	case "PutItem":
		req := &dynamodb.PutItemInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.PutItem(ctx, req)
	case "GetItem":
		req := &dynamodb.GetItemInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.GetItem(ctx, req)
	case "UpdateItem":
		req := &dynamodb.UpdateItemInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.UpdateItem(ctx, req)
	case "DeleteItem":
		req := &dynamodb.DeleteItemInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.DeleteItem(ctx, req)
	case "Query":
		req := &dynamodb.QueryInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.Query(ctx, req)
	case "Scan":
		req := &dynamodb.ScanInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.Scan(ctx, req)
	case "BatchGetItem":
		req := &dynamodb.BatchGetItemInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.BatchGetItem(ctx, req)
	case "BatchWriteItem":
		req := &dynamodb.BatchWriteItemInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.BatchWriteItem(ctx, req)
	case "TransactWriteItems":
		req := &dynamodb.TransactWriteItemsInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.TransactWriteItems(ctx, req)
	case "TransactGetItems":
		req := &dynamodb.TransactGetItemsInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.db.TransactGetItems(ctx, req)
	default:
		return nil, ErrBadRequest.New("unknown operation %q", operation)
	}
}

func (server *Server) dispatchStreams(ctx context.Context, operation string, r *http.Request) (interface{}, error) {
	switch operation {
	case "ListStreams":
		req := &dynamodbstreams.ListStreamsInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.streams.ListStreams(ctx, req)
	case "DescribeStream":
		req := &dynamodbstreams.DescribeStreamInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.streams.DescribeStream(ctx, req)
	case "GetShardIterator":
		req := &dynamodbstreams.GetShardIteratorInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.streams.GetShardIterator(ctx, req)
	case "GetRecords":
		req := &dynamodbstreams.GetRecordsInput{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return server.streams.GetRecords(ctx, req)
	default:
		return nil, ErrBadRequest.New("unknown operation %q", operation)
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := jsonutil.UnmarshalJSON(v, r.Body); err != nil {
		return ErrBadRequest.Wrap(err)
	}
	return nil
}

func (server *Server) writeResponse(w http.ResponseWriter, out interface{}) {
	data, err := jsonutil.BuildJSON(out)
	if err != nil {
		server.log.Error("response encoding failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	_, _ = w.Write(data)
}

func (server *Server) writeError(w http.ResponseWriter, target string, err error) {
	response, status := toErrorResponse(err)
	if status >= http.StatusInternalServerError {
		server.log.Error("request failed", zap.String("target", target), zap.Error(err))
	} else {
		server.log.Debug("request rejected", zap.String("target", target), zap.Error(err))
	}

	data, buildErr := jsonutil.BuildJSON(response)
	if buildErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
