package rtnl

import (
	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
)

// MockNetlinker is a mock implementation of the Netlinker interface.
type MockNetlinker struct {
	mock.Mock
}

func (m *MockNetlinker) LinkList() ([]netlink.Link, error) {
	args := m.Called()
	return args.Get(0).([]netlink.Link), args.Error(1)
}

func (m *MockNetlinker) AddrList(family int) ([]netlink.Addr, error) {
	args := m.Called(family)
	return args.Get(0).([]netlink.Addr), args.Error(1)
}

func (m *MockNetlinker) RouteListAllTables(family int) ([]netlink.Route, error) {
	args := m.Called(family)
	return args.Get(0).([]netlink.Route), args.Error(1)
}

func (m *MockNetlinker) LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}, errCb func(error)) error {
	args := m.Called(ch, done, errCb)
	return args.Error(0)
}

func (m *MockNetlinker) AddrSubscribe(ch chan<- netlink.AddrUpdate, done <-chan struct{}, errCb func(error)) error {
	args := m.Called(ch, done, errCb)
	return args.Error(0)
}

func (m *MockNetlinker) RouteSubscribe(ch chan<- netlink.RouteUpdate, done <-chan struct{}, errCb func(error)) error {
	args := m.Called(ch, done, errCb)
	return args.Error(0)
}

func (m *MockNetlinker) LinkSetUp(ifindex int) error {
	args := m.Called(ifindex)
	return args.Error(0)
}
