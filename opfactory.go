// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cachepool

import (
	"cachepool/locator"
	"cachepool/transcoder"
)

// OperationKind names the request shape an operation descriptor represents.
// The wire encoders (text or binary protocol) live outside this module and
// dispatch on it.
type OperationKind int

const (
	OpGet OperationKind = iota
	OpStore
	OpDelete
)

// Operation is a protocol-agnostic request descriptor. The external protocol
// layer encodes it for the wire; the core only guarantees it is routed
// consistently with the locator that produced it.
type Operation interface {
	Kind() OperationKind
	Key() string
}

// VBucketAwareOperation additionally carries the vbucket index the key maps
// to and the replica endpoints the operation layer may retry on. The locator
// never performs replica fallback itself.
type VBucketAwareOperation interface {
	Operation
	VBucket() int
	ReplicaEndpoints() []string
}

// OperationFactory produces operation descriptors consistent with the
// locator of the state that published it.
type OperationFactory interface {
	Get(key string) Operation
	Store(key string, item transcoder.CacheItem) Operation
	Delete(key string) Operation
}

type plainOperation struct {
	kind OperationKind
	key  string
	item transcoder.CacheItem
}

func (o *plainOperation) Kind() OperationKind       { return o.kind }
func (o *plainOperation) Key() string               { return o.key }
func (o *plainOperation) Item() transcoder.CacheItem { return o.item }

// basicOperationFactory backs the classic (ketama) construction path.
type basicOperationFactory struct{}

func (basicOperationFactory) Get(key string) Operation {
	return &plainOperation{kind: OpGet, key: key}
}

func (basicOperationFactory) Store(key string, item transcoder.CacheItem) Operation {
	return &plainOperation{kind: OpStore, key: key, item: item}
}

func (basicOperationFactory) Delete(key string) Operation {
	return &plainOperation{kind: OpDelete, key: key}
}

type vbucketOperation struct {
	plainOperation
	vbucket  int
	replicas []string
}

func (o *vbucketOperation) VBucket() int               { return o.vbucket }
func (o *vbucketOperation) ReplicaEndpoints() []string { return o.replicas }

// vbucketOperationFactory stamps each operation with its bucket index so the
// index travels with the request through the wire layer.
type vbucketOperationFactory struct {
	loc *locator.VBucketLocator
}

func (f vbucketOperationFactory) wrap(kind OperationKind, key string, item transcoder.CacheItem) Operation {
	vb := f.loc.BucketOf(key)
	replicas := f.loc.Replicas(vb)
	endpoints := make([]string, 0, len(replicas))
	for _, r := range replicas {
		endpoints = append(endpoints, r.Endpoint())
	}
	return &vbucketOperation{
		plainOperation: plainOperation{kind: kind, key: key, item: item},
		vbucket:        vb,
		replicas:       endpoints,
	}
}

func (f vbucketOperationFactory) Get(key string) Operation {
	return f.wrap(OpGet, key, transcoder.CacheItem{})
}

func (f vbucketOperationFactory) Store(key string, item transcoder.CacheItem) Operation {
	return f.wrap(OpStore, key, item)
}

func (f vbucketOperationFactory) Delete(key string) Operation {
	return f.wrap(OpDelete, key, transcoder.CacheItem{})
}
