package cache

import "github.com/Keksclan/ipcache/model"

// Nop is a Cache that stores nothing. Every Get misses; Set and Clear
// report success. Use it to disable caching in the resolving client.
type Nop struct{}

var _ Cache = Nop{}

func (Nop) GetIP(string) (*model.IPResult, bool)   { return nil, false }
func (Nop) SetIP(string, *model.IPResult) bool     { return true }
func (Nop) GetASN(string) (*model.ASNResult, bool) { return nil, false }
func (Nop) SetASN(string, *model.ASNResult) bool   { return true }
func (Nop) Get(string) (any, bool)                 { return nil, false }
func (Nop) Set(string, any) bool                   { return true }
func (Nop) Clear() bool                            { return true }
