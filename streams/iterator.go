// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package streams

import (
	"encoding/base64"
	"net/url"
	"strconv"
)

// shardIterator is the decoded form of an opaque iterator token: the stream
// position a GetRecords call resumes from.
type shardIterator struct {
	Table    string
	ShardID  string
	Sequence int64
}

// encode packs the iterator into a base64 token.
func (it shardIterator) encode() string {
	values := url.Values{}
	values.Set("table", it.Table)
	values.Set("shard", it.ShardID)
	values.Set("sequence", strconv.FormatInt(it.Sequence, 10))
	return base64.URLEncoding.EncodeToString([]byte(values.Encode()))
}

func decodeIterator(token string) (shardIterator, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return shardIterator{}, ErrInvalidIterator.Wrap(err)
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return shardIterator{}, ErrInvalidIterator.Wrap(err)
	}
	sequence, err := strconv.ParseInt(values.Get("sequence"), 10, 64)
	if err != nil {
		return shardIterator{}, ErrInvalidIterator.Wrap(err)
	}
	it := shardIterator{
		Table:    values.Get("table"),
		ShardID:  values.Get("shard"),
		Sequence: sequence,
	}
	if it.Table == "" || it.ShardID == "" {
		return shardIterator{}, ErrInvalidIterator.New("missing fields in token")
	}
	return it, nil
}
