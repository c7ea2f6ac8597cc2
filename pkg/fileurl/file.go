// Package fileurl 路径与文件工具
package fileurl

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// IsExist 判断所给路径是否存在
func IsExist(dst string) bool {
	_, err := os.Stat(dst)
	if err != nil {
		return os.IsExist(err)
	}
	return true
}

// CreatePath 创建文件所在的目录
func CreatePath(dst string, perm os.FileMode) error {
	return os.MkdirAll(filepath.Dir(dst), perm)
}

// GetExePath 获取当前执行文件所在目录
func GetExePath() string {
	file, _ := exec.LookPath(os.Args[0])
	path, _ := filepath.Abs(file)
	index := strings.LastIndex(path, string(os.PathSeparator))
	if index < 0 {
		return "."
	}
	return path[:index]
}

// Resolve 相对路径基于 root 解析为绝对路径，root 为空时基于工作目录
func Resolve(path, root string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if root == "" {
		root, _ = os.Getwd()
	}
	return filepath.Join(root, path)
}

// WriteFileAtomic 先写临时文件再重命名，避免读到写了一半的文件
func WriteFileAtomic(dst string, data []byte, perm os.FileMode) error {
	if err := CreatePath(dst, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dst)
}
