//go:build windows

package proc

import (
	"fmt"
	"sort"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/textgrab/textgrab/internal/model"
)

// List enumerates running processes via a toolhelp snapshot, sorted by name.
// Exe and Bits are filled best-effort; access-denied targets keep zero
// values rather than failing the whole listing.
func List() ([]model.Process, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var procs []model.Process
	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))
	if err := windows.Process32First(snap, &pe); err != nil {
		return nil, fmt.Errorf("process walk: %w", err)
	}
	for {
		p := model.Process{
			PID:  pe.ProcessID,
			Name: windows.UTF16ToString(pe.ExeFile[:]),
		}
		if h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, p.PID); err == nil {
			if path, err := imagePath(h); err == nil {
				p.Exe = path
			}
			windows.CloseHandle(h)
		}
		if bits, err := targetBits(p.PID); err == nil {
			p.Bits = bits
		}
		procs = append(procs, p)

		if err := windows.Process32Next(snap, &pe); err != nil {
			break
		}
	}

	sort.Slice(procs, func(i, j int) bool {
		if !strings.EqualFold(procs[i].Name, procs[j].Name) {
			return strings.ToLower(procs[i].Name) < strings.ToLower(procs[j].Name)
		}
		return procs[i].PID < procs[j].PID
	})
	return procs, nil
}

// FindByName returns processes whose image name contains name,
// case-insensitive.
func FindByName(name string) ([]model.Process, error) {
	all, err := List()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(name)
	var out []model.Process
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p)
		}
	}
	return out, nil
}
