// Package storage owns the on-disk layout of a member directory.
//
// Every stored message is a file named "<id>_<typecode>_<yyyyMMddHHmmss><ext>".
// The name doubles as the durable sync position, so writes go through a
// hidden temp file that is renamed into place only after its content is on
// disk. A picture's ".jpg" and ".txt" are staged together and committed one
// after the other.
//
// Usage:
//
//	m, err := storage.NewManager(filepath.Join(root, member.Name))
//	if err != nil {
//	    return err
//	}
//	if _, err := m.EnsureSentinel(time.Now()); err != nil {
//	    return err
//	}
//	a := storage.Artifact{ID: "42", Type: storage.TypeText, Stamp: "20230501100000", Ext: storage.ExtText}
//	err = m.WriteFile(a.FileName(), strings.NewReader(body))
package storage
