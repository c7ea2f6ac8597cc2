package convert

import (
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
)

// StructAssign 把 src 与 dst 同名字段的值复制到 dst 中
func StructAssign(src any, dst any) error {
	if err := copier.Copy(dst, src); err != nil {
		return errors.Wrap(err, "struct assign")
	}
	return nil
}
