package model

import (
	"fmt"
	"strings"
)

// Permission 权限级别，None < Read < Write < Admin.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionAdmin
)

var permissionNames = [...]string{"None", "Read", "Write", "Admin"}

func (p Permission) String() string {
	if p < PermissionNone || p > PermissionAdmin {
		return fmt.Sprintf("Permission(%d)", int(p))
	}

	return permissionNames[p]
}

// ParsePermission 解析权限名（大小写不敏感）.
func ParsePermission(s string) (Permission, error) {
	for i, name := range permissionNames {
		if strings.EqualFold(name, s) {
			return Permission(i), nil
		}
	}

	return PermissionNone, fmt.Errorf("unknown permission %q", s)
}

// MarshalText 以名称序列化.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText 从名称解析.
func (p *Permission) UnmarshalText(b []byte) error {
	parsed, err := ParsePermission(string(b))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}

// RawStorage 原始上传数据在导入完成后的处理方式.
type RawStorage string

const (
	RawStorageArchive RawStorage = "Archive"
	RawStorageLive    RawStorage = "Live"
	RawStorageDestroy RawStorage = "Destroy"
)

// Valid 判断取值是否合法.
func (r RawStorage) Valid() bool {
	switch r {
	case RawStorageArchive, RawStorageLive, RawStorageDestroy:
		return true
	}

	return false
}

// Access 仓库的公开访问级别.
type Access string

const (
	AccessPrivate    Access = "Private"
	AccessPublicRead Access = "PublicRead"
)

// Valid 判断取值是否合法.
func (a Access) Valid() bool {
	return a == AccessPrivate || a == AccessPublicRead
}

// MembershipType 组成员级别，Owner 可以管理成员.
type MembershipType string

const (
	MembershipMember MembershipType = "Member"
	MembershipOwner  MembershipType = "Owner"
)

// Valid 判断取值是否合法.
func (m MembershipType) Valid() bool {
	return m == MembershipMember || m == MembershipOwner
}

// Covers 判断 m 是否满足 need，Owner 隐含 Member.
func (m MembershipType) Covers(need MembershipType) bool {
	return m == need || m == MembershipOwner
}
